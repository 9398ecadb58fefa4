package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormProductRepository implements catalog.ProductRepository and catalog.SyncStore using GORM
type GormProductRepository struct {
	conn *Connector
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(conn *Connector) *GormProductRepository {
	return &GormProductRepository{conn: conn}
}

func (r *GormProductRepository) db(ctx context.Context) (*gorm.DB, error) {
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	var model models.ProductModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveBySlug finds the first active product with the given slug
func (r *GormProductRepository) FindActiveBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	var model models.ProductModel
	if err := db.
		Where("is_active = ? AND slug = ?", true, slug).
		Order("desc0 ASC").Order("id ASC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive lists one page of active products matching the filter
func (r *GormProductRepository) FindActive(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	page := filter.Filter.Normalize()
	var rows []models.ProductModel
	if err := applyProductFilter(db.Model(&models.ProductModel{}), filter).
		Order("desc0 ASC").Order("id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainProducts(rows), nil
}

// CountActive counts active products matching the filter
func (r *GormProductRepository) CountActive(ctx context.Context, filter catalog.ProductFilter) (int64, error) {
	db, err := r.db(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := applyProductFilter(db.Model(&models.ProductModel{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindFeatured lists active products with at least one image, newest update first
func (r *GormProductRepository) FindFeatured(ctx context.Context, limit int) ([]catalog.Product, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []catalog.Product{}, nil
	}

	var rows []models.ProductModel
	if err := db.
		Where("is_active = ?", true).
		Where("images IS NOT NULL AND images <> '[]' AND images <> 'null'").
		Order("updated_at DESC").Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainProducts(rows), nil
}

// SnapshotAPIProducts loads the id and fingerprint of every API product
func (r *GormProductRepository) SnapshotAPIProducts(ctx context.Context) (map[int64]catalog.SyncState, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID         uuid.UUID
		UpstreamID int64
		SyncHash   string
	}
	if err := db.Model(&models.ProductModel{}).
		Select("id", "upstream_id", "sync_hash").
		Where("source = ?", catalog.SourceAPI).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	snapshot := make(map[int64]catalog.SyncState, len(rows))
	for _, row := range rows {
		snapshot[row.UpstreamID] = catalog.SyncState{ID: row.ID, Fingerprint: row.SyncHash}
	}
	return snapshot, nil
}

// UpsertAPIProducts writes the products in one INSERT ... ON CONFLICT statement.
// The conflict target is the partial unique index on upstream_id for API rows.
func (r *GormProductRepository) UpsertAPIProducts(ctx context.Context, products []*catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	rows := make([]*models.ProductModel, 0, len(products))
	for _, p := range products {
		if !p.IsFromAPI() || p.UpstreamID == nil {
			return shared.NewDomainError("INVALID_SYNC_WRITE", "only API products with an upstream id can be synchronised")
		}
		rows = append(rows, models.ProductModelFromDomain(p))
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "upstream_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "source = 'api'"},
		}},
		DoUpdates: clause.AssignmentColumns(models.SyncColumns),
	}).Create(&rows).Error
}

// DeleteAPIProducts removes API products by upstream id; manual products are never matched
func (r *GormProductRepository) DeleteAPIProducts(ctx context.Context, upstreamIDs []int64) (int64, error) {
	if len(upstreamIDs) == 0 {
		return 0, nil
	}
	db, err := r.db(ctx)
	if err != nil {
		return 0, err
	}

	result := db.
		Where("source = ? AND upstream_id IN ?", catalog.SourceAPI, upstreamIDs).
		Delete(&models.ProductModel{})
	return result.RowsAffected, result.Error
}

// applyProductFilter narrows to active products, category and search text
func applyProductFilter(query *gorm.DB, filter catalog.ProductFilter) *gorm.DB {
	query = query.Where("is_active = ?", true)

	switch {
	case len(filter.Category.Include) > 0:
		query = query.Where("category IN ?", filter.Category.Include)
	case len(filter.Category.Exclude) > 0:
		query = query.Where("category NOT IN ?", filter.Category.Exclude)
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		query = query.Where(
			`(LOWER(desc0) LIKE ? ESCAPE '\' OR LOWER(brand) LIKE ? ESCAPE '\' OR LOWER(code) LIKE ? ESCAPE '\' OR LOWER(part_number) LIKE ? ESCAPE '\' OR LOWER(category) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern, pattern, pattern,
		)
	}
	return query
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside a LIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func toDomainProducts(rows []models.ProductModel) []catalog.Product {
	products := make([]catalog.Product, 0, len(rows))
	for i := range rows {
		products = append(products, *rows[i].ToDomain())
	}
	return products
}
