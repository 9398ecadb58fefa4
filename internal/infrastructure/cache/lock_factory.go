package cache

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// Lock backends accepted by sync.lock_backend
const (
	BackendDatabase = "database"
	BackendRedis    = "redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SyncLockFactory picks the sync lease implementation from configuration
type SyncLockFactory struct {
	redisConfig   config.RedisConfig
	databaseLock  catalog.SyncLock
	logger        *zap.Logger
	allowFallback bool
	connect       func(ctx context.Context, cfg config.RedisConfig) (catalog.SyncLock, io.Closer, error)
}

// SyncLockFactoryOption is a functional option for configuring the factory
type SyncLockFactoryOption func(*SyncLockFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) SyncLockFactoryOption {
	return func(f *SyncLockFactory) {
		f.logger = logger
	}
}

// WithDatabaseFallback controls whether an unreachable Redis falls back to the database lease.
// Default is true.
func WithDatabaseFallback(allow bool) SyncLockFactoryOption {
	return func(f *SyncLockFactory) {
		f.allowFallback = allow
	}
}

// NewSyncLockFactory creates a factory; databaseLock serves the database backend and the fallback
func NewSyncLockFactory(cfg config.RedisConfig, databaseLock catalog.SyncLock, opts ...SyncLockFactoryOption) *SyncLockFactory {
	f := &SyncLockFactory{
		redisConfig:   cfg,
		databaseLock:  databaseLock,
		logger:        zap.NewNop(),
		allowFallback: true,
		connect: func(ctx context.Context, cfg config.RedisConfig) (catalog.SyncLock, io.Closer, error) {
			client, err := NewRedisClient(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			lock := NewRedisSyncLock(client, "")
			return lock, lock, nil
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the lock for backend and a closer for whatever it opened
func (f *SyncLockFactory) Create(ctx context.Context, backend string) (catalog.SyncLock, io.Closer, error) {
	switch backend {
	case "", BackendDatabase:
		f.logger.Info("Using database sync lock")
		return f.databaseLock, nopCloser{}, nil

	case BackendRedis:
		lock, closer, err := f.connect(ctx, f.redisConfig)
		if err == nil {
			f.logger.Info("Using Redis sync lock", zap.String("addr", f.redisConfig.Addr()))
			return lock, closer, nil
		}
		if !f.allowFallback {
			return nil, nil, err
		}
		f.logger.Warn("Redis unavailable, falling back to database sync lock", zap.Error(err))
		return f.databaseLock, nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown sync lock backend %q", backend)
	}
}
