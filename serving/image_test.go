package serving

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImage(t *testing.T) {
	tests := []struct {
		ref      string
		registry string
		path     string
	}{
		{"docker.io/modelflow/pytorch:v2", "docker.io", "modelflow/pytorch:v2"},
		{"ghcr.io/org/image@sha256:abc", "ghcr.io", "org/image@sha256:abc"},
		{"localhost/team/image:1", "localhost", "team/image:1"},
		{"registry:5000/team/image:1", "registry:5000", "team/image:1"},
		{"modelflow/pytorch:v2", "", "modelflow/pytorch:v2"},
		{"ubuntu:22.04", "", "ubuntu:22.04"},
	}
	for _, tt := range tests {
		img := ParseImage(tt.ref)
		assert.Equal(t, tt.registry, img.Registry, "ref %q", tt.ref)
		assert.Equal(t, tt.path, img.Path, "ref %q", tt.ref)
		assert.Equal(t, tt.ref, img.String(), "ref %q", tt.ref)
	}
}

func TestResolveRewritesRegistry(t *testing.T) {
	img := ParseImage("docker.io/modelflow/pytorch:v2")
	assert.Equal(t, "mirror.corp:5000/modelflow/pytorch:v2", img.Resolve("mirror.corp:5000"))
	assert.Equal(t, "mirror.corp:5000/modelflow/pytorch:v2", img.Resolve("mirror.corp:5000/"))
}

func TestResolveWithoutOverrideKeepsOriginal(t *testing.T) {
	assert.Equal(t, "docker.io/modelflow/pytorch:v2",
		ParseImage("docker.io/modelflow/pytorch:v2").Resolve(""))
	assert.Equal(t, "ubuntu:22.04", ParseImage("ubuntu:22.04").Resolve(""))
}

func TestResolveAddsRegistryToBareReference(t *testing.T) {
	assert.Equal(t, "mirror.corp/modelflow/pytorch:v2",
		ParseImage("modelflow/pytorch:v2").Resolve("mirror.corp"))
}
