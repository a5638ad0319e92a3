package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.creationsTotal)
	assert.NotNil(t, collector.deploySubmits)
	assert.NotNil(t, collector.gcDeletions)
}

func TestCollector_RecordCreation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCreation("ok", 100*time.Millisecond)
	collector.RecordCreation("error", 50*time.Millisecond)

	count := testutil.CollectAndCount(collector.creationsTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_RecordGCPass(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordGCPass(20*time.Millisecond, 3, 2)
	collector.RecordGCDeletion(ReasonExpired)
	collector.RecordGCDeletion(ReasonEvicted)
	collector.RecordGCDeletion(ReasonEvicted)

	assert.Equal(t, float64(3), testutil.ToFloat64(collector.pendingObserved))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.evictionPool))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.gcDeletions.WithLabelValues(ReasonEvicted)))
}
