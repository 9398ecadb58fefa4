package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storefront/backend/internal/domain/catalog"
)

// SyncLockKey is the lease key shared by every reconciliation runner
const SyncLockKey = "sync_lock"

const (
	msgAlreadyRunning = "Sincronización ya en curso."
	msgFetchFailed    = "Error al obtener productos de la API externa."
	msgGeneralFailure = "Error general durante la sincronización."

	releaseTimeout = 5 * time.Second
)

// SyncObserver receives every finished run, e.g. for metrics
type SyncObserver interface {
	ObserveRun(ctx context.Context, trigger string, report *catalog.SyncReport)
}

// ReportArchive stores finished run reports and returns where they went
type ReportArchive interface {
	Archive(ctx context.Context, report *catalog.SyncReport) (string, error)
}

// SyncServiceConfig holds reconciliation tuning
type SyncServiceConfig struct {
	RunTimeout time.Duration
	LockTTL    time.Duration
	Workers    int
	BatchSize  int
}

// DefaultSyncServiceConfig returns the reconciliation defaults
func DefaultSyncServiceConfig() SyncServiceConfig {
	return SyncServiceConfig{
		RunTimeout: 10 * time.Minute,
		LockTTL:    11 * time.Minute,
		Workers:    8,
		BatchSize:  500,
	}
}

func (c SyncServiceConfig) withDefaults() SyncServiceConfig {
	d := DefaultSyncServiceConfig()
	if c.RunTimeout <= 0 {
		c.RunTimeout = d.RunTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.RunTimeout + time.Minute
	}
	if c.Workers < 1 {
		c.Workers = d.Workers
	}
	if c.BatchSize < 1 {
		c.BatchSize = d.BatchSize
	}
	return c
}

// SyncOption configures a SyncService
type SyncOption func(*SyncService)

// WithSyncObserver registers an observer called after every run
func WithSyncObserver(o SyncObserver) SyncOption {
	return func(s *SyncService) {
		s.observer = o
	}
}

// WithReportArchive stores every finished report; archive failures are only logged
func WithReportArchive(a ReportArchive) SyncOption {
	return func(s *SyncService) {
		s.archive = a
	}
}

// SyncService reconciles the local api products with the supplier catalog.
// Manual products are never read, written or deleted here.
type SyncService struct {
	source   catalog.CatalogSource
	images   catalog.ImageValidator
	store    catalog.SyncStore
	lock     catalog.SyncLock
	taxonomy *catalog.Taxonomy
	config   SyncServiceConfig
	logger   *zap.Logger

	observer  SyncObserver
	archive   ReportArchive
	newHolder func() string
}

// NewSyncService creates a new SyncService
func NewSyncService(
	source catalog.CatalogSource,
	images catalog.ImageValidator,
	store catalog.SyncStore,
	lock catalog.SyncLock,
	taxonomy *catalog.Taxonomy,
	config SyncServiceConfig,
	logger *zap.Logger,
	opts ...SyncOption,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SyncService{
		source:    source,
		images:    images,
		store:     store,
		lock:      lock,
		taxonomy:  taxonomy,
		config:    config.withDefaults(),
		logger:    logger.Named("sync"),
		newHolder: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncCatalog runs one reconciliation started by hand
func (s *SyncService) SyncCatalog(ctx context.Context) *catalog.SyncReport {
	return s.Run(ctx, catalog.SyncTriggerManual)
}

// Run executes one reconciliation and always returns a closed report
func (s *SyncService) Run(ctx context.Context, trigger catalog.SyncTrigger) *catalog.SyncReport {
	report := s.run(ctx)

	fields := []zap.Field{
		zap.String("trigger", string(trigger)),
		zap.String("status", string(report.Status)),
		zap.Int("processed", report.ProcessedCount),
		zap.Int("created", report.CreatedCount),
		zap.Int("updated", report.UpdatedCount),
		zap.Int("unchanged", report.UnchangedCount),
		zap.Int64("deleted", report.DeletedCount),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", report.Duration),
	}
	switch report.Status {
	case catalog.SyncStatusCompleted:
		s.logger.Info("Catalog sync finished", fields...)
	case catalog.SyncStatusAlreadyRunning:
		s.logger.Info("Catalog sync skipped, another run holds the lock", fields...)
	default:
		s.logger.Error("Catalog sync failed", append(fields, zap.String("message", report.Message))...)
	}

	if s.observer != nil {
		s.observer.ObserveRun(ctx, string(trigger), report)
	}
	if s.archive != nil && report.Status != catalog.SyncStatusAlreadyRunning {
		key, err := s.archive.Archive(context.WithoutCancel(ctx), report)
		if err != nil {
			s.logger.Warn("Failed to archive sync report", zap.Error(err))
		} else {
			s.logger.Debug("Sync report archived", zap.String("key", key))
		}
	}
	return report
}

func (s *SyncService) run(ctx context.Context) *catalog.SyncReport {
	report := catalog.NewSyncReport()

	holder := s.newHolder()
	acquired, err := s.lock.Acquire(ctx, SyncLockKey, holder, s.config.LockTTL)
	if err != nil {
		report.AddError("general synchronization error", fmt.Errorf("acquire sync lock: %w", err))
		return report.Fail(catalog.SyncStatusFailed, msgGeneralFailure)
	}
	if !acquired {
		return report.Fail(catalog.SyncStatusAlreadyRunning, msgAlreadyRunning)
	}
	defer s.releaseLock(ctx, holder)

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	feed, err := s.source.FetchCatalog(runCtx)
	if err != nil {
		report.AddError("fetch catalog", err)
		return report.Fail(catalog.SyncStatusFailed, msgFetchFailed)
	}

	relevant := s.taxonomy.FilterRelevant(feed.Items)
	relevantIDs := make(map[int64]struct{}, len(relevant)+len(feed.Rejected))
	for _, item := range relevant {
		relevantIDs[item.ItemID] = struct{}{}
	}

	var quarantined []catalog.RejectedRecord
	for _, rej := range feed.Rejected {
		if !s.taxonomy.IsRelevant(rej.Category) {
			continue
		}
		quarantined = append(quarantined, rej)
		if rej.ItemID > 0 {
			relevantIDs[rej.ItemID] = struct{}{}
		}
	}

	switch {
	case feed.Size() == 0:
		s.logger.Warn("Supplier catalog is empty, stored api products will be removed")
	case len(relevant) == 0 && len(quarantined) == 0:
		s.logger.Warn("No supplier product matched a relevant category",
			zap.Int("received", feed.Size()),
		)
	default:
		s.logger.Info("Supplier catalog filtered",
			zap.Int("received", feed.Size()),
			zap.Int("relevant", len(relevant)),
			zap.Int("quarantined", len(quarantined)),
		)
	}

	for _, rej := range quarantined {
		report.Errors = append(report.Errors, rej.Error())
	}
	report.ProcessedCount = len(relevant) + len(quarantined)

	// without a snapshot every product is still upserted, only unclassified
	snapshot, err := s.store.SnapshotAPIProducts(runCtx)
	if err != nil {
		report.AddError("load stored products", err)
		s.logger.Warn("Stored api products unavailable, upserting without classification", zap.Error(err))
		snapshot = nil
	}

	products := s.buildProducts(runCtx, relevant, report)
	if err := runCtx.Err(); err != nil {
		report.AddError("general synchronization error", err)
		return report.Fail(catalog.SyncStatusFailed, msgGeneralFailure)
	}

	writes := s.classify(products, snapshot, report)
	s.upsert(runCtx, writes, report)

	if snapshot == nil {
		snapshot, err = s.store.SnapshotAPIProducts(runCtx)
		if err != nil {
			report.AddError("general synchronization error", fmt.Errorf("load stored products: %w", err))
			return report.Fail(catalog.SyncStatusFailed, msgGeneralFailure)
		}
	}
	s.deleteStale(runCtx, snapshot, relevantIDs, report)

	if err := runCtx.Err(); err != nil {
		report.AddError("general synchronization error", err)
		return report.Fail(catalog.SyncStatusFailed, msgGeneralFailure)
	}
	return report.Complete()
}

func (s *SyncService) releaseLock(ctx context.Context, holder string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := s.lock.Release(ctx, SyncLockKey, holder); err != nil {
		s.logger.Warn("Failed to release sync lock", zap.String("holder", holder), zap.Error(err))
	}
}

// buildProducts maps each relevant item in parallel and returns them in feed order.
// Failed items are left out and recorded on the report.
func (s *SyncService) buildProducts(ctx context.Context, items []catalog.UpstreamProduct, report *catalog.SyncReport) []*catalog.Product {
	products := make([]*catalog.Product, len(items))
	itemErrs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(s.config.Workers)
	for i := range items {
		g.Go(func() error {
			products[i], itemErrs[i] = s.buildProduct(ctx, &items[i])
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*catalog.Product, 0, len(items))
	for i, p := range products {
		if itemErrs[i] != nil {
			report.AddError(fmt.Sprintf("upstream item_id=%d", items[i].ItemID), itemErrs[i])
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *SyncService) buildProduct(ctx context.Context, item *catalog.UpstreamProduct) (p *catalog.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic while preparing product",
				zap.Int64("item_id", item.ItemID),
				zap.Any("panic", r),
			)
			p, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	valid := s.images.ValidateAll(ctx, item.ImageURLs())
	// a cancelled check reports every image unreachable, which would deactivate the product
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	product := item.ToProduct(valid)
	if !product.IsActive {
		s.logger.Debug("Product has no reachable image, marking inactive",
			zap.Int64("item_id", item.ItemID),
			zap.String("title", item.Desc0),
		)
	}
	return product, nil
}

// classify splits products into writes and unchanged ones against the stored snapshot.
// A nil snapshot turns every product into a write counted as an update.
func (s *SyncService) classify(products []*catalog.Product, snapshot map[int64]catalog.SyncState, report *catalog.SyncReport) []productWrite {
	writes := make([]productWrite, 0, len(products))
	seen := make(map[int64]struct{}, len(products))

	for _, p := range products {
		upstreamID := *p.UpstreamID
		if _, dup := seen[upstreamID]; dup {
			report.AddError(fmt.Sprintf("upstream item_id=%d", upstreamID), errors.New("duplicate record in catalog, ignored"))
			continue
		}
		seen[upstreamID] = struct{}{}

		if snapshot == nil {
			writes = append(writes, productWrite{product: p})
			continue
		}
		state, exists := snapshot[upstreamID]
		switch {
		case !exists:
			writes = append(writes, productWrite{product: p, created: true})
		case state.Fingerprint == p.Fingerprint:
			report.UnchangedCount++
		default:
			p.ID = state.ID
			writes = append(writes, productWrite{product: p})
		}
	}
	return writes
}

type productWrite struct {
	product *catalog.Product
	created bool
}

func (s *SyncService) upsert(ctx context.Context, writes []productWrite, report *catalog.SyncReport) {
	for start := 0; start < len(writes); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(writes))
		chunk := writes[start:end]

		batch := make([]*catalog.Product, len(chunk))
		for i, w := range chunk {
			batch[i] = w.product
		}

		if err := s.store.UpsertAPIProducts(ctx, batch); err != nil {
			report.AddError("bulk upsert (create/update)", err)
			s.logger.Error("Bulk upsert failed",
				zap.Int("chunk_start", start),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			// one bad row aborts the whole statement; retry row by row so the rest still land
			if len(chunk) > 1 && ctx.Err() == nil {
				s.upsertEach(ctx, chunk, report)
			}
			continue
		}
		for _, w := range chunk {
			countWrite(report, w.created)
		}
	}
}

func (s *SyncService) upsertEach(ctx context.Context, chunk []productWrite, report *catalog.SyncReport) {
	failed := 0
	for _, w := range chunk {
		if ctx.Err() != nil {
			return
		}
		if err := s.store.UpsertAPIProducts(ctx, []*catalog.Product{w.product}); err != nil {
			report.AddError(fmt.Sprintf("upstream item_id=%d", *w.product.UpstreamID), err)
			failed++
			continue
		}
		countWrite(report, w.created)
	}
	s.logger.Info("Retried failed chunk row by row",
		zap.Int("chunk_size", len(chunk)),
		zap.Int("failed", failed),
	)
}

func (s *SyncService) deleteStale(ctx context.Context, snapshot map[int64]catalog.SyncState, keep map[int64]struct{}, report *catalog.SyncReport) {
	stale := make([]int64, 0)
	for upstreamID := range snapshot {
		if _, ok := keep[upstreamID]; !ok {
			stale = append(stale, upstreamID)
		}
	}
	if len(stale) == 0 {
		s.logger.Debug("No stale api products to delete")
		return
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })

	for start := 0; start < len(stale); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(stale))
		deleted, err := s.store.DeleteAPIProducts(ctx, stale[start:end])
		if err != nil {
			report.AddError("bulk delete", err)
			s.logger.Error("Bulk delete failed", zap.Int64s("upstream_ids", stale[start:end]), zap.Error(err))
			continue
		}
		report.DeletedCount += deleted
	}
	s.logger.Info("Deleted stale api products",
		zap.Int("candidates", len(stale)),
		zap.Int64("deleted", report.DeletedCount),
	)
}

func countWrite(report *catalog.SyncReport, created bool) {
	if created {
		report.CreatedCount++
	} else {
		report.UpdatedCount++
	}
}
