package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/persistence"
	"github.com/spec-kit/helpdesk-core/internal/queue"
	"github.com/spec-kit/helpdesk-core/internal/repository"
)

// SweepWorker periodically runs the escalation sweep over every tenant
// with active queue entries. Each tenant sweep runs under a Redis lock so
// that multiple instances do not escalate the same entries twice.
type SweepWorker struct {
	manager    *queue.Manager
	entries    repository.QueueEntryRepository
	cache      *persistence.QueueCache
	metrics    *observability.Metrics
	logger     *zap.Logger
	interval   time.Duration
	lockTTL    time.Duration
	instanceID string
}

// SweepWorkerDeps bundles the worker's collaborators.
type SweepWorkerDeps struct {
	Manager  *queue.Manager
	Entries  repository.QueueEntryRepository
	Cache    *persistence.QueueCache
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Interval time.Duration
	LockTTL  time.Duration
}

// NewSweepWorker constructs the worker.
func NewSweepWorker(deps SweepWorkerDeps) *SweepWorker {
	return &SweepWorker{
		manager:    deps.Manager,
		entries:    deps.Entries,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		interval:   deps.Interval,
		lockTTL:    deps.LockTTL,
		instanceID: uuid.NewString(),
	}
}

// Run blocks until the context is canceled, sweeping on each tick.
func (w *SweepWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("escalation sweep worker started",
		zap.Duration("interval", w.interval),
		zap.String("instance_id", w.instanceID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("escalation sweep worker stopped")
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *SweepWorker) sweepOnce(ctx context.Context) {
	tenants, err := w.entries.ActiveTenants(ctx)
	if err != nil {
		w.logger.Error("sweep tenant listing failed", zap.Error(err))
		return
	}
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return
		}
		w.sweepTenant(ctx, tenantID)
	}
}

func (w *SweepWorker) sweepTenant(ctx context.Context, tenantID string) {
	acquired, err := w.cache.AcquireSweepLock(ctx, tenantID, w.instanceID, w.lockTTL)
	if err != nil {
		w.logger.Warn("sweep lock acquire failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := w.cache.ReleaseSweepLock(ctx, tenantID, w.instanceID); err != nil {
			w.logger.Warn("sweep lock release failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}()

	report, err := w.manager.RunEscalationSweep(ctx, tenantID)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	w.metrics.RecordSweep(tenantID, report.Escalated)
	if report.Escalated > 0 {
		if err := w.cache.InvalidateSnapshot(ctx, tenantID); err != nil {
			w.logger.Warn("queue snapshot invalidation failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
}
