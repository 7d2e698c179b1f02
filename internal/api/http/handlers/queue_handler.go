package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/persistence"
	"github.com/spec-kit/helpdesk-core/internal/queue"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// QueueHandler manages priority queue endpoints.
type QueueHandler struct {
	manager *queue.Manager
	entries repository.QueueEntryRepository
	cache   *persistence.QueueCache
	metrics *observability.Metrics
	logger  *zap.Logger
	lockTTL time.Duration
}

// QueueHandlerDeps bundles the handler's collaborators.
type QueueHandlerDeps struct {
	Manager *queue.Manager
	Entries repository.QueueEntryRepository
	Cache   *persistence.QueueCache
	Metrics *observability.Metrics
	Logger  *zap.Logger
	LockTTL time.Duration
}

// NewQueueHandler constructs handler.
func NewQueueHandler(deps QueueHandlerDeps) *QueueHandler {
	return &QueueHandler{
		manager: deps.Manager,
		entries: deps.Entries,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		lockTTL: deps.LockTTL,
	}
}

// Snapshot GET /queue. Serves the cached snapshot when present, otherwise
// builds one from the store and caches it.
func (h *QueueHandler) Snapshot(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	if cached, err := h.cache.CachedSnapshot(c.Context(), principal.TenantID); err != nil {
		h.logger.Warn("queue snapshot cache read failed", zap.Error(err))
	} else if cached != nil {
		return c.JSON(fiber.Map{"data": cached, "cached": true})
	}
	entries, err := h.manager.Snapshot(c.Context(), principal.TenantID)
	if err != nil {
		return err
	}
	if err := h.cache.CacheSnapshot(c.Context(), principal.TenantID, entries); err != nil {
		h.logger.Warn("queue snapshot cache write failed", zap.Error(err))
	}
	return c.JSON(fiber.Map{"data": entries, "cached": false})
}

// Move POST /queue/entries/:id/move.
func (h *QueueHandler) Move(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entryID := c.Params("id")
	if err := h.ownEntry(c, principal.TenantID, entryID); err != nil {
		return err
	}
	if err := h.manager.MoveToPosition(c.Context(), entryID, req.Position); err != nil {
		return err
	}
	h.invalidate(c, principal.TenantID)
	return c.JSON(fiber.Map{"data": fiber.Map{"entry_id": entryID, "position": req.Position}})
}

// Escalate POST /queue/entries/:id/escalate.
func (h *QueueHandler) Escalate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}
	entryID := c.Params("id")
	if err := h.ownEntry(c, principal.TenantID, entryID); err != nil {
		return err
	}
	if err := h.manager.Escalate(c.Context(), entryID, reason); err != nil {
		return err
	}
	h.invalidate(c, principal.TenantID)
	return c.JSON(fiber.Map{"data": fiber.Map{"entry_id": entryID, "escalated": true}})
}

// Reorder POST /queue/reorder. Rebuilds positions from current scores.
func (h *QueueHandler) Reorder(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	if err := h.manager.ReorderByScore(c.Context(), principal.TenantID); err != nil {
		return err
	}
	h.invalidate(c, principal.TenantID)
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"reordered": true}})
}

// Sweep POST /queue/sweep. Runs the escalation sweep for the caller's
// tenant under a cross-instance lock so overlapping requests do not
// double-escalate.
func (h *QueueHandler) Sweep(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	holder := uuid.NewString()
	acquired, err := h.cache.AcquireSweepLock(c.Context(), principal.TenantID, holder, h.lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"error": fiber.Map{"code": "CONFLICT", "message": "sweep already running for tenant"},
		})
	}
	defer func() {
		if err := h.cache.ReleaseSweepLock(c.Context(), principal.TenantID, holder); err != nil {
			h.logger.Warn("sweep lock release failed", zap.Error(err))
		}
	}()

	report, err := h.manager.RunEscalationSweep(c.Context(), principal.TenantID)
	if err != nil {
		return err
	}
	h.metrics.RecordSweep(principal.TenantID, report.Escalated)
	if report.Escalated > 0 {
		h.invalidate(c, principal.TenantID)
	}
	return c.JSON(fiber.Map{"data": report})
}

// ownEntry verifies the entry exists and belongs to the caller's tenant.
func (h *QueueHandler) ownEntry(c *fiber.Ctx, tenantID, entryID string) error {
	entry, err := h.entries.GetByID(c.Context(), entryID)
	if err != nil {
		return err
	}
	if entry == nil || entry.TenantID != tenantID {
		return apperrors.NewNotFound("queue entry", map[string]any{"entry_id": entryID})
	}
	return nil
}

func (h *QueueHandler) invalidate(c *fiber.Ctx, tenantID string) {
	if err := h.cache.InvalidateSnapshot(c.Context(), tenantID); err != nil {
		h.logger.Warn("queue snapshot invalidation failed", zap.Error(err))
	}
}
