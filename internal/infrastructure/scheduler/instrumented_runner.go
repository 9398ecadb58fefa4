package scheduler

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

// AttrSyncRunID correlates spans, logs and profiles of one run
const AttrSyncRunID = attribute.Key("sync.run_id")

// InstrumentedRunner wraps a SyncRunner with a span, a run id on the
// context logger and a pprof label carrying the trigger.
type InstrumentedRunner struct {
	next   SyncRunner
	logger *zap.Logger
	newID  func() string
}

// NewInstrumentedRunner creates a new InstrumentedRunner
func NewInstrumentedRunner(next SyncRunner, log *zap.Logger) *InstrumentedRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &InstrumentedRunner{next: next, logger: log, newID: uuid.NewString}
}

// Run implements SyncRunner
func (r *InstrumentedRunner) Run(ctx context.Context, trigger catalog.SyncTrigger) *catalog.SyncReport {
	runID := r.newID()

	ctx, span := telemetry.StartServiceSpan(ctx, "catalog_sync", "run",
		telemetry.AttrSyncTrigger.String(string(trigger)),
		AttrSyncRunID.String(runID),
	)
	defer span.End()

	ctx, _ = logger.WithSyncRunID(ctx, r.logger, runID)
	logger.L(ctx).Debug("Catalog sync run started", zap.String("trigger", string(trigger)))

	var report *catalog.SyncReport
	telemetry.WithProfilingLabels(ctx, map[string]string{
		telemetry.ProfilingLabelTrigger: string(trigger),
	}, func(ctx context.Context) {
		report = r.next.Run(ctx, trigger)
	})

	span.SetAttributes(
		telemetry.AttrSyncStatus.String(string(report.Status)),
		attribute.Int("sync.processed", report.ProcessedCount),
		attribute.Int("sync.created", report.CreatedCount),
		attribute.Int("sync.updated", report.UpdatedCount),
		attribute.Int64("sync.deleted", report.DeletedCount),
		attribute.Int("sync.errors", len(report.Errors)),
	)
	switch report.Status {
	case catalog.SyncStatusCompleted, catalog.SyncStatusAlreadyRunning:
		telemetry.SetOK(span)
	default:
		telemetry.RecordError(span, errors.New(report.Message))
	}
	return report
}
