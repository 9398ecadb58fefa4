package scheduler

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/infrastructure/logger"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

// contextProbe captures what the wrapped runner sees
type contextProbe struct {
	runID   string
	label   string
	hasSpan bool
	report  *catalog.SyncReport
}

func (p *contextProbe) Run(ctx context.Context, _ catalog.SyncTrigger) *catalog.SyncReport {
	p.runID = logger.GetSyncRunID(ctx)
	p.label, _ = pprof.Label(ctx, "sync_trigger")
	p.hasSpan = logger.GetTraceID(ctx) != ""
	return p.report
}

func TestInstrumentedRunner_Completed(t *testing.T) {
	sr := recordSpans(t)
	report := catalog.NewSyncReport()
	report.CreatedCount = 3
	probe := &contextProbe{report: report.Complete()}

	r := NewInstrumentedRunner(probe, zap.NewNop())
	r.newID = func() string { return "run-1" }

	got := r.Run(context.Background(), catalog.SyncTriggerSchedule)
	assert.Same(t, probe.report, got)

	assert.Equal(t, "run-1", probe.runID)
	assert.Equal(t, "schedule", probe.label)
	assert.True(t, probe.hasSpan)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "catalog_sync.run", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("sync.run_id", "run-1"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("sync.created", 3))
}

func TestInstrumentedRunner_Failed(t *testing.T) {
	sr := recordSpans(t)
	probe := &contextProbe{
		report: catalog.NewSyncReport().Fail(catalog.SyncStatusFailed, "supplier unreachable"),
	}

	NewInstrumentedRunner(probe, nil).Run(context.Background(), catalog.SyncTriggerHTTP)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "supplier unreachable", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.String("sync.status", "failed"))
}
