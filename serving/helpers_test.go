package serving

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/modelflow-ai/modelflow/catalog"
	"github.com/modelflow-ai/modelflow/config"
	"github.com/modelflow-ai/modelflow/internal/metrics"
	"github.com/modelflow-ai/modelflow/kube"
	"github.com/modelflow-ai/modelflow/token"
)

var metricsNamespaceSeq uint64

func nextMetricsNamespace() string {
	seq := atomic.AddUint64(&metricsNamespaceSeq, 1)
	return fmt.Sprintf("servingtest_%d", seq)
}

// stack wires the full serving pipeline against an in-memory database
// and a fake cluster.
type stack struct {
	db        *gorm.DB
	ledger    *Ledger
	resolver  *catalog.Resolver
	clientset *fake.Clientset
	kube      *kube.Client
	deployer  *Deployer
	svc       *Service
	rec       *Reconciler

	project *catalog.Project
	model   *catalog.ModelVersion
	runtime *catalog.RuntimeVersion
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	ledger := NewLedger(db)
	require.NoError(t, ledger.Migrate())
	resolver := catalog.NewResolver(db)
	require.NoError(t, resolver.Migrate())

	cfg := config.DefaultConfig()
	cfg.Token.Secret = "serving-test-secret"
	cfg.Serving.InstanceURI = "https://controller.test"
	cfg.Serving.MinTTL = time.Minute
	cfg.Serving.MaxTTL = time.Hour
	cfg.Pypi = config.PypiConfig{
		IndexURL:      "https://pypi.test/simple",
		ExtraIndexURL: "https://extra.pypi.test/simple",
		TrustedHost:   "pypi.test",
	}

	issuer, err := token.NewIssuer(cfg.Token)
	require.NoError(t, err)

	clientset := fake.NewSimpleClientset()
	kc := kube.NewClient(clientset, "default", logger)
	collector := metrics.NewCollector(nextMetricsNamespace(), logger)

	deployer := NewDeployer(kc, issuer, cfg, collector, logger)
	svc := NewService(ledger, resolver, deployer, collector, logger)
	rec := NewReconciler(kc, ledger, svc.Mutex(), cfg.Serving, collector, logger)

	s := &stack{
		db:        db,
		ledger:    ledger,
		resolver:  resolver,
		clientset: clientset,
		kube:      kc,
		deployer:  deployer,
		svc:       svc,
		rec:       rec,
	}
	s.seedCatalog(t)
	return s
}

func (s *stack) seedCatalog(t *testing.T) {
	t.Helper()
	s.project = &catalog.Project{Name: "demo", OwnerID: 11}
	require.NoError(t, s.db.Create(s.project).Error)
	s.model = &catalog.ModelVersion{ProjectID: s.project.ID, ModelName: "mnist", Name: "v1"}
	require.NoError(t, s.db.Create(s.model).Error)
	s.runtime = &catalog.RuntimeVersion{
		ProjectID:   s.project.ID,
		RuntimeName: "pytorch",
		Name:        "v2",
		Image:       "docker.io/modelflow/pytorch:v2",
	}
	require.NoError(t, s.db.Create(s.runtime).Error)
}

func (s *stack) createRequest() CreateRequest {
	return CreateRequest{
		Project:        "demo",
		ModelVersion:   "mnist/v1",
		RuntimeVersion: "pytorch/v2",
		ResourcePool:   "default",
		OwnerID:        11,
	}
}
