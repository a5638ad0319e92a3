package serving

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestServiceNameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.Int64Range(0, 1<<62).Draw(t, "id")
		got, ok := ServiceIDFromName(ServiceName(id))
		if !ok {
			t.Fatalf("decode failed for id %d", id)
		}
		if got != id {
			t.Fatalf("round trip: got %d, want %d", got, id)
		}
	})
}

func TestServiceIDFromNameRejectsForeignNames(t *testing.T) {
	for _, name := range []string{
		"",
		"model-serving",
		"model-serving-",
		"model-serving-abc",
		"model-serving-1-2",
		"model-serving-1 ",
		"xmodel-serving-1",
		"nginx",
		"model-training-7",
	} {
		_, ok := ServiceIDFromName(name)
		assert.False(t, ok, "name %q should not decode", name)
	}
}

func TestServiceIDFromNameArbitraryStringNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		ServiceIDFromName(s)
	})
}

func TestServiceBaseURI(t *testing.T) {
	assert.Equal(t, "/gateway/model-serving/7", ServiceBaseURI(7))
	assert.Equal(t, "/gateway/model-serving/0", ServiceBaseURI(0))
}
