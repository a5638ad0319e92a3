package serving

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"

	"github.com/modelflow-ai/modelflow/config"
	"github.com/modelflow-ai/modelflow/internal/metrics"
	"github.com/modelflow-ai/modelflow/kube"
)

// Reconciler is the periodic garbage collector. Each pass lists the
// cluster's serving workloads, cross-references the ledger, deletes
// orphans and expired instances, and under capacity pressure evicts
// the single oldest idle instance. The whole pass runs inside the
// same critical section as instance creation so a sweep never races a
// creation on the same row.
type Reconciler struct {
	kube    *kube.Client
	ledger  *Ledger
	mu      *sync.Mutex
	maxTTL  time.Duration
	minTTL  time.Duration
	period  time.Duration
	metrics *metrics.Collector
	logger  *zap.Logger
	tracer  trace.Tracer

	now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewReconciler(
	k *kube.Client,
	ledger *Ledger,
	mu *sync.Mutex,
	cfg config.ServingConfig,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		kube:    k,
		ledger:  ledger,
		mu:      mu,
		maxTTL:  cfg.MaxTTL,
		minTTL:  cfg.MinTTL,
		period:  cfg.GCInterval,
		metrics: collector,
		logger:  logger.With(zap.String("component", "reconciler")),
		tracer:  otel.Tracer("modelflow/serving"),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run executes passes on the configured period until Stop is called
// or the context is cancelled. An in-flight pass always finishes.
func (r *Reconciler) Run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.logger.Info("reconciler started",
		zap.Duration("period", r.period),
		zap.Duration("max_ttl", r.maxTTL),
		zap.Duration("min_ttl", r.minTTL))

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.pass(ctx)
			r.mu.Unlock()
		}
	}
}

// Stop requests shutdown and waits for the in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// candidate is an eviction-eligible instance observed during a pass.
type candidate struct {
	id        int64
	name      string
	lastVisit time.Time
}

// pass runs one full list-compare-decide-act cycle. Errors on
// individual workloads are logged and left for the next pass; the
// loop itself never aborts.
func (r *Reconciler) pass(ctx context.Context) {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "serving.gc_pass")
	defer span.End()

	workloads, err := r.kube.ListStatefulSets(ctx, kube.ServingSelector())
	if err != nil {
		r.logger.Error("list workloads failed", zap.Error(err))
		return
	}
	pods, err := r.kube.ListPods(ctx, kube.ServingSelector())
	if err != nil {
		r.logger.Error("list pods failed", zap.Error(err))
		return
	}
	podsByOwner := indexPodsByOwner(pods)

	now := r.now()
	hasPending := false
	pendingCount := 0
	var candidates []candidate

	for i := range workloads {
		ss := &workloads[i]
		id, ok := ServiceIDFromName(ss.Name)
		if !ok {
			// not a resource of ours
			continue
		}

		inst, err := r.ledger.Find(ctx, id)
		if err != nil {
			r.logger.Error("ledger lookup failed", zap.Int64("instance_id", id), zap.Error(err))
			continue
		}
		if inst == nil {
			r.deleteWorkload(ctx, ss.Name, metrics.ReasonOrphan)
			continue
		}
		if now.Sub(inst.LastVisitTime) > r.maxTTL {
			r.deleteWorkload(ctx, ss.Name, metrics.ReasonExpired)
			continue
		}
		if ss.Status.ObservedGeneration == 0 {
			// just submitted, too new to judge
			continue
		}
		if !hasSchedulablePod(podsByOwner[ss.Name]) {
			hasPending = true
			pendingCount++
			continue
		}
		if ss.Status.ReadyReplicas == 0 {
			continue
		}
		if now.Sub(inst.LastVisitTime) < r.minTTL {
			continue
		}
		candidates = append(candidates, candidate{id: id, name: ss.Name, lastVisit: inst.LastVisitTime})
	}

	// Evict only under observed pressure, and at most one instance per
	// pass: the oldest by last visit.
	if hasPending && len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].lastVisit.Before(candidates[j].lastVisit)
		})
		oldest := candidates[0]
		r.logger.Info("evicting under pressure",
			zap.Int64("instance_id", oldest.id),
			zap.Time("last_visit", oldest.lastVisit))
		r.deleteWorkload(ctx, oldest.name, metrics.ReasonEvicted)
	}

	span.SetAttributes(
		attribute.Int("workloads", len(workloads)),
		attribute.Int("pending", pendingCount),
		attribute.Int("eviction_eligible", len(candidates)),
	)
	r.metrics.RecordGCPass(r.now().Sub(start), pendingCount, len(candidates))
}

func (r *Reconciler) deleteWorkload(ctx context.Context, name, reason string) {
	if err := r.kube.DeleteStatefulSet(ctx, name); err != nil {
		r.logger.Error("delete workload failed, will retry next pass",
			zap.String("name", name), zap.String("reason", reason), zap.Error(err))
		return
	}
	r.logger.Info("workload deleted", zap.String("name", name), zap.String("reason", reason))
	r.metrics.RecordGCDeletion(reason)
}

// indexPodsByOwner maps workload name to the pods it owns, via pod
// owner references.
func indexPodsByOwner(pods []corev1.Pod) map[string][]corev1.Pod {
	out := make(map[string][]corev1.Pod)
	for _, p := range pods {
		for _, ref := range p.OwnerReferences {
			if ref.Kind == "StatefulSet" {
				out[ref.Name] = append(out[ref.Name], p)
			}
		}
	}
	return out
}

// hasSchedulablePod reports whether a workload has at least one pod
// past the pending phase. A workload with no pod, or only pending or
// status-less pods, is the pressure signal.
func hasSchedulablePod(pods []corev1.Pod) bool {
	for _, p := range pods {
		if p.Status.Phase != "" && p.Status.Phase != corev1.PodPending {
			return true
		}
	}
	return false
}
