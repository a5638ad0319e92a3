package serving

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modelflow-ai/modelflow/catalog"
	"github.com/modelflow-ai/modelflow/internal/metrics"
)

// CreateRequest asks for an on-demand serving instance. Model and
// runtime are "<name>/<version>" references resolved within the
// project.
type CreateRequest struct {
	Project        string
	ModelVersion   string
	RuntimeVersion string
	ResourcePool   string
	OwnerID        int64
}

// CreateResult identifies the instance serving the request. The URI
// is stable across redeploys of the same id.
type CreateResult struct {
	InstanceID int64
	URI        string
}

// Service is the creation coordinator. It resolves catalog
// references, deduplicates concurrent requests for the same logical
// key through the ledger, and triggers the idempotent deployment.
type Service struct {
	ledger   *Ledger
	catalog  *catalog.Resolver
	deployer *Deployer

	// mu serializes ledger decisions against the reconciler. Shared
	// with the Reconciler via Mutex().
	mu sync.Mutex

	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewService(
	ledger *Ledger,
	resolver *catalog.Resolver,
	deployer *Deployer,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Service {
	return &Service{
		ledger:   ledger,
		catalog:  resolver,
		deployer: deployer,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "serving")),
	}
}

// Mutex exposes the critical section shared with the reconciler.
func (s *Service) Mutex() *sync.Mutex {
	return &s.mu
}

// Create ensures a live serving instance exists for the request's
// logical key and returns its id and URI. Concurrent calls with the
// same key all land on the same instance. A deployment failure leaves
// the ledger row in place; the next create for the same key retries
// the deploy, which is safe because submission is conflict-ignored.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	start := time.Now()
	res, err := s.create(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordCreation(status, time.Since(start))
	return res, err
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	project, err := s.catalog.ProjectByName(ctx, req.Project)
	if err != nil {
		return nil, err
	}
	model, err := s.catalog.ModelVersionByRef(ctx, project.ID, req.ModelVersion)
	if err != nil {
		return nil, err
	}
	runtime, err := s.catalog.RuntimeVersionByRef(ctx, project.ID, req.RuntimeVersion)
	if err != nil {
		return nil, err
	}

	key := InstanceKey{
		ProjectID:        project.ID,
		ModelVersionID:   model.ID,
		RuntimeVersionID: runtime.ID,
		ResourcePool:     req.ResourcePool,
	}

	s.mu.Lock()
	inst, created, err := s.ledger.FindOrCreate(ctx, key, req.OwnerID)
	if err == nil {
		// Touch even when landing on an existing row: the visit keeps
		// the instance alive.
		err = s.ledger.Touch(ctx, inst.ID, time.Now())
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("serving instance registered",
			zap.Int64("instance_id", inst.ID),
			zap.String("project", req.Project),
			zap.String("model", req.ModelVersion),
			zap.String("runtime", req.RuntimeVersion),
			zap.String("resource_pool", req.ResourcePool))
	}

	// Deploy outside the lock: it talks to the cluster and must not
	// block creations for unrelated keys.
	uri, err := s.deployer.Deploy(ctx, inst, model, runtime, project)
	if err != nil {
		return nil, err
	}

	return &CreateResult{InstanceID: inst.ID, URI: uri}, nil
}
