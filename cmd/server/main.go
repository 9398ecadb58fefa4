package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	catalogapp "github.com/storefront/backend/internal/application/catalog"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/imagecheck"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/migration"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/infrastructure/supplier"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/router"
	"github.com/storefront/backend/migrations"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Bootstrap logger, replaced once the OTEL logs bridge is up
	bootLog, err := logger.New(loggerConfig(cfg))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := setupTelemetry(ctx, cfg, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	log, err := logger.New(loggerConfig(cfg), logger.WithCore(tel.logs.ZapCore(zapcore.InfoLevel)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting storefront backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	if err := run(ctx, cfg, tel, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		tel.shutdown(log)
		_ = logger.Sync(log)
		os.Exit(1)
	}
	tel.shutdown(log)
	log.Info("Server exited gracefully")
}

func loggerConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	}
}

// telemetryStack owns every OTEL provider and the profiler
type telemetryStack struct {
	tracer   *telemetry.TracerProvider
	meters   *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	profiler *telemetry.Profiler
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*telemetryStack, error) {
	t := cfg.Telemetry
	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}

	meters, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           t.Enabled && t.MetricsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ExportInterval:    t.MetricsInterval,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}

	logs, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           t.Enabled && t.LogsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           t.ProfilingEnabled,
		ServerAddress:     t.PyroscopeAddress,
		ApplicationName:   t.ServiceName,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		return nil, err
	}
	if profiler.IsEnabled() && tracer.IsEnabled() {
		if err := tracer.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles unavailable", zap.Error(err))
		}
	}

	return &telemetryStack{tracer: tracer, meters: meters, logs: logs, profiler: profiler}, nil
}

func (t *telemetryStack) shutdown(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.profiler.Stop(); err != nil {
		log.Warn("Profiler shutdown failed", zap.Error(err))
	}
	if err := t.tracer.Shutdown(ctx); err != nil {
		log.Warn("Tracer shutdown failed", zap.Error(err))
	}
	if err := t.meters.Shutdown(ctx); err != nil {
		log.Warn("Meter shutdown failed", zap.Error(err))
	}
	if err := t.logs.Shutdown(ctx); err != nil {
		log.Warn("Logs shutdown failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, tel *telemetryStack, log *zap.Logger) error {
	gormOpts := []logger.GormLoggerOption{logger.WithSQLText(cfg.App.Env != "production")}
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		gormOpts = append(gormOpts, logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), gormOpts...)
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log)

	// Connects lazily: a database outage at boot degrades /health instead of failing start-up
	conn := persistence.NewConnector(&cfg.Database, gormLog,
		persistence.WithConnectorLogger(log),
		persistence.WithPlugin(dbTracing.RegisterOtelGorm),
		persistence.WithPlugin(autoMigrate(cfg.Database.AutoMigrate, log)),
	)
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	poolMetrics, err := telemetry.NewDBPoolMetrics(tel.meters.Meter("storefront.db"), conn, log)
	if err != nil {
		return fmt.Errorf("db pool metrics: %w", err)
	}
	defer func() { _ = poolMetrics.Stop() }()

	products := persistence.NewGormProductRepository(conn)

	lockFactory := cache.NewSyncLockFactory(cfg.Redis, persistence.NewGormSyncLock(conn), cache.WithLogger(log))
	lock, lockCloser, err := lockFactory.Create(ctx, cfg.Sync.LockBackend)
	if err != nil {
		return fmt.Errorf("sync lock: %w", err)
	}
	defer closeQuietly(lockCloser, log)

	taxonomyCfg := catalog.DefaultTaxonomyConfig()
	if cfg.Catalog.HasTaxonomy() {
		taxonomyCfg = catalog.TaxonomyConfig{
			DisplayCategories:  cfg.Catalog.DisplayCategories,
			CombinedCategories: cfg.Catalog.CombinedCategories,
			OtherCategory:      cfg.Catalog.OtherCategory,
		}
	}
	taxonomy, err := catalog.NewTaxonomy(taxonomyCfg)
	if err != nil {
		return fmt.Errorf("catalog taxonomy: %w", err)
	}
	if ignored := taxonomy.IgnoredCombinedKeys(); len(ignored) > 0 {
		log.Warn("Combined categories without a display category are ignored", zap.Strings("keys", ignored))
	}

	syncMetrics, err := telemetry.NewSyncMetrics(tel.meters.Meter("storefront.sync"), log)
	if err != nil {
		return fmt.Errorf("sync metrics: %w", err)
	}

	tokens := supplier.NewCachingTokenProvider(supplier.NewTokenProvider(&cfg.Supplier, log), cfg.Supplier.TokenTTL)
	fetcher := supplier.NewCatalogFetcher(&cfg.Supplier, tokens, log)
	images := imagecheck.NewValidator(&cfg.Images, log, imagecheck.WithObserver(syncMetrics.ObserveImageCheck))

	syncOpts := []catalogapp.SyncOption{catalogapp.WithSyncObserver(syncMetrics)}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3ReportArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return fmt.Errorf("report archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Report archive bucket unavailable", zap.String("bucket", archive.Bucket()), zap.Error(err))
		}
		syncOpts = append(syncOpts, catalogapp.WithReportArchive(archive))
	}

	syncService := catalogapp.NewSyncService(fetcher, images, products, lock, taxonomy,
		catalogapp.SyncServiceConfig{
			RunTimeout: cfg.Sync.RunTimeout,
			LockTTL:    cfg.Sync.LockTTL,
			Workers:    cfg.Sync.Workers,
			BatchSize:  cfg.Sync.BatchSize,
		}, log, syncOpts...)
	queryService := catalogapp.NewQueryService(products, taxonomy, cfg.Catalog.FeaturedLimit)
	syncRunner := scheduler.NewInstrumentedRunner(syncService, log)

	jobs, err := scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
		Enabled:      cfg.Sync.ScheduleEnabled,
		Interval:     cfg.Sync.Interval,
		RunOnStartup: cfg.Sync.RunOnStartup,
		HistorySize:  cfg.Sync.HistorySize,
	}, syncRunner, log)
	if err != nil {
		return fmt.Errorf("sync scheduler: %w", err)
	}
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("start sync scheduler: %w", err)
	}

	engine, err := router.NewEngine(router.EngineConfig{
		HTTP:             cfg.HTTP,
		Production:       cfg.App.Env == "production",
		SyncSecret:       cfg.Sync.Secret,
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   tel.tracer.IsEnabled(),
		ProfilingEnabled: tel.profiler.IsEnabled(),
	}, router.Handlers{
		System:   handler.NewSystemHandler(conn, cfg.App.Name, telemetry.ServiceVersion, log),
		Products: handler.NewProductHandler(queryService),
		Sync:     handler.NewSyncHandler(syncRunner, jobs),
	}, log, tel.meters)
	if err != nil {
		return fmt.Errorf("http engine: %w", err)
	}

	if engine.Limiter != nil {
		go engine.Limiter.RunCleanup(cfg.HTTP.RateLimitWindow, ctx.Done())
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Warn("Sync scheduler did not stop cleanly", zap.Error(err))
	}
	return nil
}

// autoMigrate applies the embedded schema the first time the connector opens
func autoMigrate(enabled bool, log *zap.Logger) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		if !enabled {
			return nil
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		m, err := migration.NewFromFS(sqlDB, migrations.FS, log)
		if err != nil {
			return err
		}
		return m.Up()
	}
}

func closeQuietly(c io.Closer, log *zap.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("Close failed", zap.Error(err))
	}
}
