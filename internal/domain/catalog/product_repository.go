package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// ProductFilter narrows storefront listings; only active products are ever listed
type ProductFilter struct {
	shared.Filter
	Category CategoryMatch
}

// ProductRepository is the read side of the catalog
type ProductRepository interface {
	// FindByID finds a product by its ID, returning shared.ErrNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindActiveBySlug finds the first active product carrying the slug
	FindActiveBySlug(ctx context.Context, slug string) (*Product, error)

	// FindActive lists one page of active products ordered by title then id
	FindActive(ctx context.Context, filter ProductFilter) ([]Product, error)

	// CountActive counts active products matching the filter, ignoring paging
	CountActive(ctx context.Context, filter ProductFilter) (int64, error)

	// FindFeatured lists active products with images, most recently updated first
	FindFeatured(ctx context.Context, limit int) ([]Product, error)
}

// SyncStore is the write side used by catalog reconciliation.
// It only ever reads or writes rows with source=api.
type SyncStore interface {
	// SnapshotAPIProducts returns the stored API products keyed by upstream id
	SnapshotAPIProducts(ctx context.Context) (map[int64]SyncState, error)

	// UpsertAPIProducts inserts or fully overwrites products keyed by upstream id, in one statement
	UpsertAPIProducts(ctx context.Context, products []*Product) error

	// DeleteAPIProducts removes API products by upstream id and returns the rows removed
	DeleteAPIProducts(ctx context.Context, upstreamIDs []int64) (int64, error)
}

// SyncLock is an expiring mutual-exclusion lease around reconciliation runs
type SyncLock interface {
	// Acquire takes the lease unless another live holder has it
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)

	// Release gives the lease up if holder still owns it
	Release(ctx context.Context, key, holder string) error
}
