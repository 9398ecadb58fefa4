package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

const (
	msgSyncCompleted = "Sincronización iniciada y completada."
	msgSyncFailed    = "Sincronización falló."
	msgSyncCrashed   = "Error crítico al intentar sincronizar."
)

// CatalogSyncer runs one reconciliation and reports its outcome
type CatalogSyncer interface {
	Run(ctx context.Context, trigger catalog.SyncTrigger) *catalog.SyncReport
}

// SyncJobs is the scheduler surface exposed over HTTP
type SyncJobs interface {
	Trigger() (scheduler.Job, error)
	History() []scheduler.Job
	GetJob(id uuid.UUID) (scheduler.Job, bool)
}

// SyncHandler exposes the catalog reconciliation endpoints
type SyncHandler struct {
	BaseHandler
	syncer CatalogSyncer
	jobs   SyncJobs
}

// NewSyncHandler creates a new SyncHandler; jobs may be nil when no scheduler runs
func NewSyncHandler(syncer CatalogSyncer, jobs SyncJobs) *SyncHandler {
	return &SyncHandler{syncer: syncer, jobs: jobs}
}

// SyncProducts handles GET and POST /api/v1/sync/products
// Runs the reconciliation synchronously and returns its report
func (h *SyncHandler) SyncProducts(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetGinLogger(c).Error("Catalog sync crashed", zap.Any("panic", r), zap.Stack("stacktrace"))
			c.JSON(http.StatusInternalServerError, dto.SyncResponse{
				Message: msgSyncCrashed,
				Error:   fmt.Sprint(r),
			})
		}
	}()

	// A cron caller hanging up must not abort a half-written reconciliation;
	// the run carries its own deadline.
	ctx := context.WithoutCancel(c.Request.Context())
	report := h.syncer.Run(ctx, catalog.SyncTriggerHTTP)

	switch {
	case report.Success:
		c.JSON(http.StatusOK, dto.SyncResponse{Message: msgSyncCompleted, Details: report})
	case report.Status == catalog.SyncStatusAlreadyRunning:
		c.JSON(http.StatusConflict, dto.SyncResponse{Message: report.Message, Details: report})
	default:
		c.JSON(http.StatusInternalServerError, dto.SyncResponse{Message: msgSyncFailed, Details: report})
	}
}

// TriggerJob handles POST /api/v1/sync/jobs
// Hands a run to the background scheduler and returns immediately
func (h *SyncHandler) TriggerJob(c *gin.Context) {
	if h.jobs == nil {
		h.ServiceUnavailable(c, "Sync scheduler is not running")
		return
	}

	job, err := h.jobs.Trigger()
	switch {
	case err == nil:
		h.Accepted(c, job)
	case errors.Is(err, scheduler.ErrJobQueueFull):
		h.Conflict(c, "A sync job is already queued")
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.ServiceUnavailable(c, "Sync scheduler is not running")
	default:
		h.HandleError(c, err)
	}
}

// ListJobs handles GET /api/v1/sync/jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		h.Success(c, []scheduler.Job{})
		return
	}
	h.Success(c, h.jobs.History())
}

// GetJob handles GET /api/v1/sync/jobs/:id
func (h *SyncHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || h.jobs == nil {
		h.NotFound(c, "Sync job not found")
		return
	}
	job, ok := h.jobs.GetJob(id)
	if !ok {
		h.NotFound(c, "Sync job not found")
		return
	}
	h.Success(c, job)
}
