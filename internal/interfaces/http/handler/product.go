package handler

import (
	"github.com/gin-gonic/gin"

	catalogapp "github.com/storefront/backend/internal/application/catalog"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// ProductHandler serves the storefront catalog queries
type ProductHandler struct {
	BaseHandler
	queries *catalogapp.QueryService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(queries *catalogapp.QueryService) *ProductHandler {
	return &ProductHandler{queries: queries}
}

// List handles GET /api/v1/products
// One page of active products, optionally filtered by display category and free text
func (h *ProductHandler) List(c *gin.Context) {
	var q catalogapp.ProductQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	page, err := h.queries.GetProducts(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page, page.TotalProducts, page.CurrentPage, page.PageSize)
}

// Featured handles GET /api/v1/products/featured
// Most recently updated active products that have images
func (h *ProductHandler) Featured(c *gin.Context) {
	products, err := h.queries.GetFeaturedProducts(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, products)
}

// GetByID handles GET /api/v1/products/:id
func (h *ProductHandler) GetByID(c *gin.Context) {
	product, err := h.queries.GetProductByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if product == nil {
		h.NotFound(c, "Product not found")
		return
	}
	h.Success(c, product)
}

// GetBySlug handles GET /api/v1/products/slug/:slug
func (h *ProductHandler) GetBySlug(c *gin.Context) {
	product, err := h.queries.GetProductBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if product == nil {
		h.NotFound(c, "Product not found")
		return
	}
	h.Success(c, product)
}

// Categories handles GET /api/v1/categories
func (h *ProductHandler) Categories(c *gin.Context) {
	h.Success(c, h.queries.ListCategories())
}
