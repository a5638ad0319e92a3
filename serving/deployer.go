package serving

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modelflow-ai/modelflow/catalog"
	"github.com/modelflow-ai/modelflow/config"
	"github.com/modelflow-ai/modelflow/internal/metrics"
	"github.com/modelflow-ai/modelflow/kube"
	"github.com/modelflow-ai/modelflow/token"
	"github.com/modelflow-ai/modelflow/types"
)

// Environment injected into every serving workload. The workload uses
// these to pull its model and runtime, reach back to the controller,
// and install packages through the configured mirror.
const (
	envModelVersion   = "MF_MODEL_VERSION"
	envRuntimeVersion = "MF_RUNTIME_VERSION"
	envProject        = "MF_PROJECT"
	envInstanceURI    = "MF_INSTANCE_URI"
	envToken          = "MF_TOKEN"
	envServingBaseURI = "MF_MODEL_SERVING_BASE_URI"
	envProduction     = "MF_PRODUCTION"
	envPypiIndex      = "MF_PYPI_INDEX_URL"
	envPypiExtraIndex = "MF_PYPI_EXTRA_INDEX_URL"
	envPypiTrusted    = "MF_PYPI_TRUSTED_HOST"
)

// Deployer renders and submits the workload and service pair for a
// serving instance.
type Deployer struct {
	kube    *kube.Client
	tokens  *token.Issuer
	serving config.ServingConfig
	pypi    config.PypiConfig
	// private registry override; empty means use images as declared
	registry string
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewDeployer(
	k *kube.Client,
	tokens *token.Issuer,
	cfg *config.Config,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Deployer {
	return &Deployer{
		kube:     k,
		tokens:   tokens,
		serving:  cfg.Serving,
		pypi:     cfg.Pypi,
		registry: cfg.Docker.Registry,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "deployer")),
	}
}

// Deploy submits the workload for an instance and returns its stable
// external URI. A name conflict means another caller already deployed
// this id; the conflict is swallowed and the same URI returned, which
// is what makes redundant deploys safe. The service is created only
// after the workload exists, owner-bound so cluster cascade delete
// cleans it up; a service creation failure is surfaced without
// rolling back the workload, because the next create for the same key
// retries it through the conflict-ignored path.
func (d *Deployer) Deploy(
	ctx context.Context,
	inst *ServingInstance,
	model *catalog.ModelVersion,
	runtime *catalog.RuntimeVersion,
	project *catalog.Project,
) (string, error) {
	name := ServiceName(inst.ID)
	baseURI := ServiceBaseURI(inst.ID)
	image := ParseImage(runtime.Image).Resolve(d.registry)

	env, err := d.buildEnv(inst, model, runtime, project, baseURI)
	if err != nil {
		return "", err
	}

	ss := kube.RenderServingWorkload(name, image, env)
	created, outcome, err := d.kube.DeployStatefulSet(ctx, ss)
	d.metrics.RecordDeploySubmit(string(outcome))
	switch outcome {
	case kube.SubmitFailed:
		return "", types.NewError(types.ErrDeployFailed, "submit workload").WithCause(err)
	case kube.SubmitAlreadyExists:
		d.logger.Info("workload already deployed",
			zap.Int64("instance_id", inst.ID), zap.String("name", name))
		return baseURI, nil
	}

	if err := d.kube.DeployService(ctx, kube.BuildServingService(created)); err != nil {
		return "", types.NewError(types.ErrDeployFailed, "create service").WithCause(err)
	}

	d.logger.Info("workload deployed",
		zap.Int64("instance_id", inst.ID),
		zap.String("name", name),
		zap.String("image", image))
	return baseURI, nil
}

func (d *Deployer) buildEnv(
	inst *ServingInstance,
	model *catalog.ModelVersion,
	runtime *catalog.RuntimeVersion,
	project *catalog.Project,
	baseURI string,
) (map[string]string, error) {
	scoped, err := d.tokens.Mint(inst.OwnerID, inst.ID)
	if err != nil {
		return nil, types.NewError(types.ErrDeployFailed, "mint serving token").WithCause(err)
	}

	return map[string]string{
		envModelVersion:   fmt.Sprintf("%s/version/%s", model.ModelName, model.Name),
		envRuntimeVersion: fmt.Sprintf("%s/version/%s", runtime.RuntimeName, runtime.Name),
		envProject:        project.Name,
		envInstanceURI:    d.serving.InstanceURI,
		envToken:          scoped,
		envServingBaseURI: baseURI,
		envProduction:     "1",
		envPypiIndex:      d.pypi.IndexURL,
		envPypiExtraIndex: d.pypi.ExtraIndexURL,
		envPypiTrusted:    d.pypi.TrustedHost,
	}, nil
}
