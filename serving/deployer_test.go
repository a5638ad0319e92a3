package serving

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8stesting "k8s.io/client-go/testing"

	"github.com/modelflow-ai/modelflow/kube"
	"github.com/modelflow-ai/modelflow/types"
)

func registeredInstance(t *testing.T, s *stack) *ServingInstance {
	t.Helper()
	inst, _, err := s.ledger.FindOrCreate(context.Background(), InstanceKey{
		ProjectID:        s.project.ID,
		ModelVersionID:   s.model.ID,
		RuntimeVersionID: s.runtime.ID,
		ResourcePool:     "default",
	}, s.project.OwnerID)
	require.NoError(t, err)
	return inst
}

func TestDeployCreatesWorkloadAndService(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	inst := registeredInstance(t, s)

	uri, err := s.deployer.Deploy(ctx, inst, s.model, s.runtime, s.project)
	require.NoError(t, err)
	assert.Equal(t, ServiceBaseURI(inst.ID), uri)

	name := ServiceName(inst.ID)
	ss, err := s.clientset.AppsV1().StatefulSets("default").Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "docker.io/modelflow/pytorch:v2", ss.Spec.Template.Spec.Containers[0].Image)

	svc, err := s.clientset.CoreV1().Services("default").Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, svc.OwnerReferences, 1)
	assert.Equal(t, "StatefulSet", svc.OwnerReferences[0].Kind)
	assert.Equal(t, name, svc.OwnerReferences[0].Name)
}

func TestDeployTwiceIsIdempotent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	inst := registeredInstance(t, s)

	first, err := s.deployer.Deploy(ctx, inst, s.model, s.runtime, s.project)
	require.NoError(t, err)
	second, err := s.deployer.Deploy(ctx, inst, s.model, s.runtime, s.project)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ssList, err := s.kube.ListStatefulSets(ctx, kube.ServingSelector())
	require.NoError(t, err)
	assert.Len(t, ssList, 1)

	svcList, err := s.clientset.CoreV1().Services("default").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, svcList.Items, 1)
}

func TestDeployEnvBundle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	inst := registeredInstance(t, s)

	_, err := s.deployer.Deploy(ctx, inst, s.model, s.runtime, s.project)
	require.NoError(t, err)

	ss, err := s.clientset.AppsV1().StatefulSets("default").Get(ctx, ServiceName(inst.ID), metav1.GetOptions{})
	require.NoError(t, err)

	env := map[string]string{}
	for _, e := range ss.Spec.Template.Spec.Containers[0].Env {
		env[e.Name] = e.Value
	}
	assert.Equal(t, "mnist/version/v1", env[envModelVersion])
	assert.Equal(t, "pytorch/version/v2", env[envRuntimeVersion])
	assert.Equal(t, "demo", env[envProject])
	assert.Equal(t, "https://controller.test", env[envInstanceURI])
	assert.Equal(t, ServiceBaseURI(inst.ID), env[envServingBaseURI])
	assert.Equal(t, "1", env[envProduction])
	assert.Equal(t, "https://pypi.test/simple", env[envPypiIndex])
	assert.Equal(t, "https://extra.pypi.test/simple", env[envPypiExtraIndex])
	assert.Equal(t, "pypi.test", env[envPypiTrusted])

	claims, err := s.deployer.tokens.Validate(env[envToken])
	require.NoError(t, err)
	assert.Equal(t, inst.ID, claims.InstanceID)
}

func TestDeployRewritesImageThroughRegistry(t *testing.T) {
	s := newStack(t)
	s.deployer.registry = "mirror.corp:5000"
	ctx := context.Background()
	inst := registeredInstance(t, s)

	_, err := s.deployer.Deploy(ctx, inst, s.model, s.runtime, s.project)
	require.NoError(t, err)

	ss, err := s.clientset.AppsV1().StatefulSets("default").Get(ctx, ServiceName(inst.ID), metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mirror.corp:5000/modelflow/pytorch:v2", ss.Spec.Template.Spec.Containers[0].Image)
}

func TestDeployServiceFailureKeepsWorkload(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	inst := registeredInstance(t, s)

	s.clientset.PrependReactor("create", "services",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("apiserver unavailable")
		})

	_, err := s.deployer.Deploy(ctx, inst, s.model, s.runtime, s.project)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDeployFailed))

	_, err = s.clientset.AppsV1().StatefulSets("default").Get(ctx, ServiceName(inst.ID), metav1.GetOptions{})
	assert.NoError(t, err)
}

func TestDeployWorkloadFailureIsFatal(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	inst := registeredInstance(t, s)

	s.clientset.PrependReactor("create", "statefulsets",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("quota exceeded")
		})

	_, err := s.deployer.Deploy(ctx, inst, s.model, s.runtime, s.project)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDeployFailed))
}
