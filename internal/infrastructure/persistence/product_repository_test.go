package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

func apiProduct(id int64, title, category string, images ...string) *catalog.Product {
	u := catalog.UpstreamProduct{
		ItemID:      id,
		Code:        "SKU-" + title,
		Desc0:       title,
		Brand:       "Acme",
		Category:    category,
		NetPriceUSD: decimal.NewFromInt(id * 10),
	}
	return u.ToProduct(images)
}

func insertManual(t *testing.T, conn *Connector, title, category string) *catalog.Product {
	t.Helper()
	p, err := catalog.NewManualProduct(title, category)
	require.NoError(t, err)
	db, err := conn.DB(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.Create(models.ProductModelFromDomain(p)).Error)
	return p
}

func TestGormProductRepository_UpsertAndSnapshot(t *testing.T) {
	conn := newSQLiteConnector(t)
	repo := NewGormProductRepository(conn)
	ctx := context.Background()

	first := apiProduct(1, "Notebook Pro 14", "Notebooks", "https://img/1.jpg")
	second := apiProduct(2, "Heladera No Frost", "Refrigeracion")
	require.NoError(t, repo.UpsertAPIProducts(ctx, []*catalog.Product{first, second}))

	snapshot, err := repo.SnapshotAPIProducts(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.Equal(t, first.ID, snapshot[1].ID)
	assert.Equal(t, first.Fingerprint, snapshot[1].Fingerprint)

	// same upstream id, fresh entity id: the stored id must survive
	changed := apiProduct(1, "Notebook Pro 14 (2025)", "Notebooks", "https://img/1.jpg")
	require.NotEqual(t, first.ID, changed.ID)
	require.NoError(t, repo.UpsertAPIProducts(ctx, []*catalog.Product{changed}))

	stored, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notebook Pro 14 (2025)", stored.Desc0)
	assert.Equal(t, changed.Fingerprint, stored.Fingerprint)
	assert.Equal(t, catalog.SourceAPI, stored.Source)
	require.NotNil(t, stored.UpstreamID)
	assert.EqualValues(t, 1, *stored.UpstreamID)
	assert.Equal(t, []string{"https://img/1.jpg"}, stored.ImageURLs())

	snapshot, err = repo.SnapshotAPIProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, 2)
}

func TestGormProductRepository_UpsertRejectsManual(t *testing.T) {
	repo := NewGormProductRepository(newSQLiteConnector(t))
	manual, err := catalog.NewManualProduct("Mate", "Bazar")
	require.NoError(t, err)

	err = repo.UpsertAPIProducts(context.Background(), []*catalog.Product{manual})
	require.Error(t, err)
	assert.NoError(t, repo.UpsertAPIProducts(context.Background(), nil))
}

func TestGormProductRepository_DeleteLeavesManualProducts(t *testing.T) {
	conn := newSQLiteConnector(t)
	repo := NewGormProductRepository(conn)
	ctx := context.Background()

	manual := insertManual(t, conn, "Pava electrica artesanal", "Bazar")
	require.NoError(t, repo.UpsertAPIProducts(ctx, []*catalog.Product{
		apiProduct(10, "A", "Bazar"),
		apiProduct(11, "B", "Bazar"),
		apiProduct(12, "C", "Bazar"),
	}))

	deleted, err := repo.DeleteAPIProducts(ctx, []int64{10, 12, 99})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	snapshot, err := repo.SnapshotAPIProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)
	assert.Contains(t, snapshot, int64(11))

	_, err = repo.FindByID(ctx, manual.ID)
	assert.NoError(t, err)

	deleted, err = repo.DeleteAPIProducts(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestGormProductRepository_FindActive(t *testing.T) {
	conn := newSQLiteConnector(t)
	repo := NewGormProductRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.UpsertAPIProducts(ctx, []*catalog.Product{
		apiProduct(1, "Celular Moto G", "Celulares Libres", "https://img/1.jpg"),
		apiProduct(2, "Aire Split 3000", "Climatizacion", "https://img/2.jpg"),
		apiProduct(3, "Monitor 24 100%_hz", "Monitores", "https://img/3.jpg"),
		apiProduct(4, "Sin imagen", "Monitores"), // inactive
		apiProduct(5, "Lampara", "Iluminacion", "https://img/5.jpg"),
	}))
	insertManual(t, conn, "Bowl de ceramica", "Bazar")

	tests := []struct {
		name   string
		filter catalog.ProductFilter
		titles []string
	}{
		{
			name:   "all active ordered by title",
			filter: catalog.ProductFilter{Filter: shared.DefaultFilter()},
			titles: []string{"Aire Split 3000", "Bowl de ceramica", "Celular Moto G", "Lampara", "Monitor 24 100%_hz"},
		},
		{
			name: "include categories",
			filter: catalog.ProductFilter{
				Filter:   shared.DefaultFilter(),
				Category: catalog.CategoryMatch{Include: []string{"Computadoras", "Monitores"}},
			},
			titles: []string{"Monitor 24 100%_hz"},
		},
		{
			name: "exclude categories",
			filter: catalog.ProductFilter{
				Filter:   shared.DefaultFilter(),
				Category: catalog.CategoryMatch{Exclude: []string{"Celulares Libres", "Climatizacion", "Monitores", "Bazar"}},
			},
			titles: []string{"Lampara"},
		},
		{
			name:   "search is case-insensitive over title and brand",
			filter: catalog.ProductFilter{Filter: shared.Filter{Page: 1, PageSize: 12, Search: "MOTO"}},
			titles: []string{"Celular Moto G"},
		},
		{
			name:   "search matches category",
			filter: catalog.ProductFilter{Filter: shared.Filter{Page: 1, PageSize: 12, Search: "climati"}},
			titles: []string{"Aire Split 3000"},
		},
		{
			name:   "like wildcards are literal",
			filter: catalog.ProductFilter{Filter: shared.Filter{Page: 1, PageSize: 12, Search: "100%_"}},
			titles: []string{"Monitor 24 100%_hz"},
		},
		{
			name:   "percent alone matches only literal percent",
			filter: catalog.ProductFilter{Filter: shared.Filter{Page: 1, PageSize: 12, Search: "%"}},
			titles: []string{"Monitor 24 100%_hz"},
		},
		{
			name:   "second page",
			filter: catalog.ProductFilter{Filter: shared.Filter{Page: 2, PageSize: 2}},
			titles: []string{"Celular Moto G", "Lampara"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, err := repo.FindActive(ctx, tt.filter)
			require.NoError(t, err)

			titles := make([]string, 0, len(products))
			for _, p := range products {
				titles = append(titles, p.Desc0)
			}
			assert.Equal(t, tt.titles, titles)
		})
	}

	count, err := repo.CountActive(ctx, catalog.ProductFilter{Filter: shared.Filter{Page: 3, PageSize: 1}})
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestGormProductRepository_FindFeaturedAndSlug(t *testing.T) {
	conn := newSQLiteConnector(t)
	repo := NewGormProductRepository(conn)
	ctx := context.Background()

	older := apiProduct(1, "Smart TV 43", "Television", "https://img/tv.jpg")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := apiProduct(2, "Tablet 10", "Tablets", "https://img/tab.jpg")
	noImage := apiProduct(3, "Freezer", "Refrigeracion")
	require.NoError(t, repo.UpsertAPIProducts(ctx, []*catalog.Product{older, newer, noImage}))
	insertManual(t, conn, "Manual sin foto", "Bazar")

	featured, err := repo.FindFeatured(ctx, 8)
	require.NoError(t, err)
	require.Len(t, featured, 2)
	assert.Equal(t, "Tablet 10", featured[0].Desc0)
	assert.Equal(t, "Smart TV 43", featured[1].Desc0)

	featured, err = repo.FindFeatured(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, featured, 1)

	bySlug, err := repo.FindActiveBySlug(ctx, "smart-tv-43")
	require.NoError(t, err)
	assert.Equal(t, older.ID, bySlug.ID)

	_, err = repo.FindActiveBySlug(ctx, "freezer")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormProductRepository_PostgresStatements(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	repo := NewGormProductRepository(NewConnectorWithDB(db.DB))
	ctx := context.Background()

	t.Run("upsert targets the partial unique index", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO "products" .* ON CONFLICT \("upstream_id"\) WHERE source = 'api' DO UPDATE SET "code"="excluded"."code"`).
			WillReturnResult(sqlmock.NewResult(0, 2))

		err := repo.UpsertAPIProducts(ctx, []*catalog.Product{
			apiProduct(1, "A", "Tablets"),
			apiProduct(2, "B", "Tablets"),
		})
		require.NoError(t, err)
	})

	t.Run("delete is scoped to api rows", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "products" WHERE source = $1 AND upstream_id IN ($2,$3)`)).
			WithArgs("api", int64(5), int64(6)).
			WillReturnResult(sqlmock.NewResult(0, 2))

		deleted, err := repo.DeleteAPIProducts(ctx, []int64{5, 6})
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
