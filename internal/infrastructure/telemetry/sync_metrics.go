package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// SyncMetrics records catalog reconciliation runs and image checks.
type SyncMetrics struct {
	logger *zap.Logger

	runsTotal     *Counter
	productsTotal *Counter
	errorsTotal   *Counter
	imageChecks   *Counter
	runDuration   *Histogram
	lastSuccess   *Gauge
	catalogSize   *Gauge
}

// NewSyncMetrics registers the reconciliation instruments on meter.
func NewSyncMetrics(meter metric.Meter, logger *zap.Logger) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{logger: logger}
	var err error

	if sm.runsTotal, err = NewCounter(meter,
		"storefront_sync_runs_total", "Reconciliation runs by final status", "{runs}"); err != nil {
		return nil, err
	}
	if sm.productsTotal, err = NewCounter(meter,
		"storefront_sync_products_total", "Products written or removed by reconciliation, by outcome", "{products}"); err != nil {
		return nil, err
	}
	if sm.errorsTotal, err = NewCounter(meter,
		"storefront_sync_errors_total", "Per-item errors collected during reconciliation", "{errors}"); err != nil {
		return nil, err
	}
	if sm.imageChecks, err = NewCounter(meter,
		"storefront_image_checks_total", "Supplier image URL probes by outcome", "{checks}"); err != nil {
		return nil, err
	}
	if sm.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "storefront_sync_duration_seconds",
		Description: "Wall time of reconciliation runs",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.lastSuccess, err = NewGauge(meter,
		"storefront_sync_last_success_timestamp", "Unix time the last completed run finished", "s"); err != nil {
		return nil, err
	}
	if sm.catalogSize, err = NewGauge(meter,
		"storefront_sync_processed_products", "Relevant supplier products seen by the last completed run", "{products}"); err != nil {
		return nil, err
	}

	return sm, nil
}

// ObserveRun records one finished reconciliation run.
func (sm *SyncMetrics) ObserveRun(ctx context.Context, trigger string, report *catalog.SyncReport) {
	if report == nil {
		return
	}

	sm.runsTotal.Inc(ctx, AttrSyncStatus.String(string(report.Status)), AttrSyncTrigger.String(trigger))
	if report.Status == catalog.SyncStatusAlreadyRunning {
		return
	}

	sm.runDuration.RecordDuration(ctx, report.Duration, AttrSyncStatus.String(string(report.Status)))
	sm.productsTotal.Add(ctx, int64(report.CreatedCount), AttrSyncOutcome.String("created"))
	sm.productsTotal.Add(ctx, int64(report.UpdatedCount), AttrSyncOutcome.String("updated"))
	sm.productsTotal.Add(ctx, int64(report.UnchangedCount), AttrSyncOutcome.String("unchanged"))
	sm.productsTotal.Add(ctx, report.DeletedCount, AttrSyncOutcome.String("deleted"))
	sm.errorsTotal.Add(ctx, int64(len(report.Errors)))

	if report.Status == catalog.SyncStatusCompleted {
		sm.lastSuccess.Record(ctx, report.FinishedAt.Unix())
		sm.catalogSize.Record(ctx, int64(report.ProcessedCount))
	}

	sm.logger.Debug("Recorded sync run metrics",
		zap.String("status", string(report.Status)),
		zap.String("trigger", trigger),
	)
}

// ObserveImageCheck records one image URL probe.
func (sm *SyncMetrics) ObserveImageCheck(ctx context.Context, reachable bool) {
	outcome := "reachable"
	if !reachable {
		outcome = "unreachable"
	}
	sm.imageChecks.Inc(ctx, AttrImageOutcome.String(outcome))
}
