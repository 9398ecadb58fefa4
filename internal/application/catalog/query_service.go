package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/shared"
)

// DefaultFeaturedLimit is the number of products on the home page strip
const DefaultFeaturedLimit = 8

// QueryService serves the read-only storefront queries
type QueryService struct {
	products      catalog.ProductRepository
	taxonomy      *catalog.Taxonomy
	featuredLimit int
}

// NewQueryService creates a new QueryService
func NewQueryService(products catalog.ProductRepository, taxonomy *catalog.Taxonomy, featuredLimit int) *QueryService {
	if featuredLimit < 1 {
		featuredLimit = DefaultFeaturedLimit
	}
	return &QueryService{
		products:      products,
		taxonomy:      taxonomy,
		featuredLimit: featuredLimit,
	}
}

// GetProducts lists one page of active products
func (s *QueryService) GetProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	filter := catalog.ProductFilter{
		Filter: shared.Filter{
			Page:     q.Page,
			PageSize: q.Limit,
			Search:   strings.TrimSpace(q.Query),
		}.Normalize(),
		Category: s.taxonomy.Resolve(q.Category),
	}

	var (
		products []catalog.Product
		total    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.products.FindActive(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.products.CountActive(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := shared.NewPaginated(ToProductResponses(products), total, filter.Page, filter.PageSize)
	return &ProductPage{
		Products:      page.Items,
		TotalProducts: page.Total,
		TotalPages:    page.TotalPages,
		CurrentPage:   page.Page,
		PageSize:      page.PageSize,
	}, nil
}

// GetProductByID returns the product, or nil when the id is malformed or unknown
func (s *QueryService) GetProductByID(ctx context.Context, id string) (*ProductResponse, error) {
	productID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, nil
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	resp := ToProductResponse(product)
	return &resp, nil
}

// GetProductBySlug returns the active product linked by slug, or nil
func (s *QueryService) GetProductBySlug(ctx context.Context, slug string) (*ProductResponse, error) {
	slug = catalog.Slugify(slug)
	if slug == "" {
		return nil, nil
	}

	product, err := s.products.FindActiveBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	resp := ToProductResponse(product)
	return &resp, nil
}

// GetFeaturedProducts returns the newest active products that have images
func (s *QueryService) GetFeaturedProducts(ctx context.Context) ([]ProductResponse, error) {
	products, err := s.products.FindFeatured(ctx, s.featuredLimit)
	if err != nil {
		return nil, err
	}
	return ToProductResponses(products), nil
}

// ListCategories returns the navigation categories
func (s *QueryService) ListCategories() []string {
	return s.taxonomy.Categories()
}
