package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/catalog"
)

// ProductQuery represents storefront listing parameters
type ProductQuery struct {
	Category string `form:"category" binding:"max=100"`
	Query    string `form:"query" binding:"max=200"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// ProductPage is one page of a storefront listing
type ProductPage struct {
	Products      []ProductResponse `json:"products"`
	TotalProducts int64             `json:"totalProducts"`
	TotalPages    int               `json:"totalPages"`
	CurrentPage   int               `json:"currentPage"`
	PageSize      int               `json:"pageSize"`
}

// ProductResponse represents a product in API responses; field names follow the supplier feed
type ProductResponse struct {
	ID          uuid.UUID          `json:"id"`
	UpstreamID  *int64             `json:"api_item_id,omitempty"`
	Source      string             `json:"source"`
	Code        string             `json:"codigo"`
	EAN         string             `json:"ean"`
	PartNumber  string             `json:"partNumber"`
	Title       string             `json:"item_desc_0"`
	Desc1       string             `json:"item_desc_1"`
	Desc2       string             `json:"item_desc_2"`
	ShortTitle  string             `json:"short_title"`
	Slug        string             `json:"slug"`
	Brand       string             `json:"marca"`
	Category    string             `json:"category"`
	Subcategory string             `json:"subcategory"`
	Description string             `json:"description"`
	WeightGr    float64            `json:"peso_gr"`
	HeightCm    float64            `json:"alto_cm"`
	WidthCm     float64            `json:"ancho_cm"`
	LengthCm    float64            `json:"largo_cm"`
	VolumeCm3   float64            `json:"volumen_cm3"`
	NetPriceUSD decimal.Decimal    `json:"precioNeto_USD"`
	Taxes       []catalog.TaxLine  `json:"impuestos"`
	StockMDP    int                `json:"stock_mdp"`
	StockCABA   int                `json:"stock_caba"`
	Images      []catalog.ImageRef `json:"url_imagenes"`
	IsActive    bool               `json:"isActive"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// ToProductResponse converts a domain Product to a ProductResponse
func ToProductResponse(p *catalog.Product) ProductResponse {
	taxes := p.Taxes
	if taxes == nil {
		taxes = []catalog.TaxLine{}
	}
	images := p.Images
	if images == nil {
		images = []catalog.ImageRef{}
	}
	return ProductResponse{
		ID:          p.ID,
		UpstreamID:  p.UpstreamID,
		Source:      string(p.Source),
		Code:        p.Code,
		EAN:         p.EAN,
		PartNumber:  p.PartNumber,
		Title:       p.Desc0,
		Desc1:       p.Desc1,
		Desc2:       p.Desc2,
		ShortTitle:  catalog.ShortTitle(p.Desc0),
		Slug:        p.Slug,
		Brand:       p.Brand,
		Category:    p.Category,
		Subcategory: p.Subcategory,
		Description: p.Description,
		WeightGr:    p.Dimensions.WeightGr,
		HeightCm:    p.Dimensions.HeightCm,
		WidthCm:     p.Dimensions.WidthCm,
		LengthCm:    p.Dimensions.LengthCm,
		VolumeCm3:   p.Dimensions.VolumeCm3,
		NetPriceUSD: p.NetPriceUSD,
		Taxes:       taxes,
		StockMDP:    p.Stock.MarDelPlata,
		StockCABA:   p.Stock.CABA,
		Images:      images,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ToProductResponses converts a slice of domain Products
func ToProductResponses(products []catalog.Product) []ProductResponse {
	responses := make([]ProductResponse, len(products))
	for i := range products {
		responses[i] = ToProductResponse(&products[i])
	}
	return responses
}
