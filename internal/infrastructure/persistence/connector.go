package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storefront/backend/internal/infrastructure/config"
)

// ErrConnectorClosed is returned by DB after Close
var ErrConnectorClosed = errors.New("persistence: connector closed")

// OpenFunc opens a database; the connector calls it at most once per successful connection
type OpenFunc func(ctx context.Context) (*Database, error)

// Connector is the process-wide, lazily opened database handle.
// The first DB call connects; concurrent first callers share one attempt.
// A failed attempt is not cached, so the next call tries again.
type Connector struct {
	current atomic.Pointer[Database]
	mu      sync.Mutex
	closed  bool
	open    OpenFunc
	plugins []func(*gorm.DB) error
	logger  *zap.Logger
}

// ConnectorOption configures a Connector
type ConnectorOption func(*Connector)

// WithPlugin runs fn on every freshly opened connection, e.g. to register otelgorm
func WithPlugin(fn func(*gorm.DB) error) ConnectorOption {
	return func(c *Connector) {
		c.plugins = append(c.plugins, fn)
	}
}

// WithConnectorLogger sets the logger used to report connection attempts
func WithConnectorLogger(logger *zap.Logger) ConnectorOption {
	return func(c *Connector) {
		c.logger = logger
	}
}

// WithOpenFunc replaces the postgres opener
func WithOpenFunc(open OpenFunc) ConnectorOption {
	return func(c *Connector) {
		c.open = open
	}
}

// NewConnector creates a connector for postgres; no connection is made until DB is called
func NewConnector(cfg *config.DatabaseConfig, gormLogger gormlogger.Interface, opts ...ConnectorOption) *Connector {
	c := &Connector{logger: zap.NewNop()}
	c.open = func(ctx context.Context) (*Database, error) {
		return NewDatabaseWithCustomLogger(ctx, cfg, gormLogger)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewConnectorWithDB wraps an already open connection
func NewConnectorWithDB(db *gorm.DB) *Connector {
	c := &Connector{logger: zap.NewNop()}
	c.current.Store(&Database{DB: db})
	return c
}

// DB returns the shared connection, opening it on first use
func (c *Connector) DB(ctx context.Context) (*gorm.DB, error) {
	if d := c.current.Load(); d != nil {
		return d.DB, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectorClosed
	}
	if d := c.current.Load(); d != nil {
		return d.DB, nil
	}
	if c.open == nil {
		return nil, errors.New("persistence: connector has no opener")
	}

	d, err := c.open(ctx)
	if err != nil {
		c.logger.Error("Database connection failed", zap.Error(err))
		return nil, err
	}
	for _, plugin := range c.plugins {
		if err := plugin(d.DB); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("failed to initialise database plugin: %w", err)
		}
	}

	c.current.Store(d)
	c.logger.Info("Database connection established")
	return d.DB, nil
}

// Ping opens the connection if needed and checks it is alive
func (c *Connector) Ping(ctx context.Context) error {
	if _, err := c.DB(ctx); err != nil {
		return err
	}
	return c.current.Load().Ping(ctx)
}

// Stats reports pool statistics, or zero values before the first connection
func (c *Connector) Stats() (ConnectionStats, error) {
	d := c.current.Load()
	if d == nil {
		return ConnectionStats{}, nil
	}
	return d.Stats()
}

// Close closes the connection if one was opened; later DB calls fail
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	d := c.current.Swap(nil)
	if d == nil {
		return nil
	}
	return d.Close()
}
