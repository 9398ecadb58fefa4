package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/persistence"
)

// AttrPoolState labels db_pool_connections
const AttrPoolState = attribute.Key("state")

// PoolStatsSource is satisfied by persistence.Connector
type PoolStatsSource interface {
	Stats() (persistence.ConnectionStats, error)
}

// DBPoolMetrics publishes connection pool gauges, read on every collection.
// Nothing is reported until the connector has opened its first connection.
type DBPoolMetrics struct {
	registration metric.Registration
}

// NewDBPoolMetrics registers the pool instruments on meter.
func NewDBPoolMetrics(meter metric.Meter, source PoolStatsSource, logger *zap.Logger) (*DBPoolMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	connections, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Number of connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}
	maxOpen, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections waited for since start-up"),
		metric.WithUnit("{wait}"))
	if err != nil {
		return nil, err
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats, err := source.Stats()
		if err != nil {
			logger.Debug("Pool stats unavailable", zap.Error(err))
			return nil
		}
		if stats.MaxOpenConnections == 0 && stats.OpenConnections == 0 {
			return nil
		}
		o.ObserveInt64(connections, int64(stats.InUse), metric.WithAttributes(AttrPoolState.String("in_use")))
		o.ObserveInt64(connections, int64(stats.Idle), metric.WithAttributes(AttrPoolState.String("idle")))
		o.ObserveInt64(maxOpen, int64(stats.MaxOpenConnections))
		o.ObserveInt64(waits, stats.WaitCount)
		return nil
	}, connections, maxOpen, waits)
	if err != nil {
		return nil, err
	}
	return &DBPoolMetrics{registration: reg}, nil
}

// Stop unregisters the callback
func (m *DBPoolMetrics) Stop() error {
	return m.registration.Unregister()
}
