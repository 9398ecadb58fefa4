package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
)

// UpstreamImage is an image entry of the supplier feed.
// URLs are not validated here; unusable ones fail the image check instead.
type UpstreamImage struct {
	URL string `json:"url"`
}

// UpstreamTax is a tax entry of the supplier feed
type UpstreamTax struct {
	Description string          `json:"imp_desc"`
	Percentage  decimal.Decimal `json:"imp_porcentaje" validate:"decimal_gte0"`
}

// UpstreamProduct is one record of the supplier catalog feed, field names as sent upstream
type UpstreamProduct struct {
	ItemID      int64           `json:"item_id" validate:"gt=0"`
	Code        string          `json:"codigo" validate:"max=64"`
	EAN         string          `json:"ean" validate:"max=64"`
	PartNumber  string          `json:"partNumber" validate:"max=128"`
	Desc0       string          `json:"item_desc_0" validate:"required,max=500"`
	Desc1       string          `json:"item_desc_1,omitempty"`
	Desc2       string          `json:"item_desc_2,omitempty"`
	Brand       string          `json:"marca" validate:"max=128"`
	Category    string          `json:"categoria" validate:"required,max=128"`
	Subcategory string          `json:"subcategoria" validate:"max=128"`
	WeightGr    float64         `json:"peso_gr" validate:"gte=0"`
	HeightCm    float64         `json:"alto_cm" validate:"gte=0"`
	WidthCm     float64         `json:"ancho_cm" validate:"gte=0"`
	LengthCm    float64         `json:"largo_cm" validate:"gte=0"`
	VolumeCm3   float64         `json:"volumen_cm3" validate:"gte=0"`
	NetPriceUSD decimal.Decimal `json:"precioNeto_USD" validate:"decimal_gte0"`
	Taxes       []UpstreamTax   `json:"impuestos" validate:"dive"`
	StockMDP    int             `json:"stock_mdp"`
	StockCABA   int             `json:"stock_caba"`
	Images      []UpstreamImage `json:"url_imagenes"`
}

// ImageURLs returns the candidate image URLs in feed order
func (u *UpstreamProduct) ImageURLs() []string {
	urls := make([]string, 0, len(u.Images))
	for _, img := range u.Images {
		urls = append(urls, img.URL)
	}
	return urls
}

// ToProduct maps the record onto an API-sourced product.
// validImages must be the subset of ImageURLs that passed validation, in order.
func (u *UpstreamProduct) ToProduct(validImages []string) *Product {
	upstreamID := u.ItemID

	taxes := make([]TaxLine, 0, len(u.Taxes))
	for _, t := range u.Taxes {
		taxes = append(taxes, TaxLine{Description: t.Description, Percentage: t.Percentage})
	}
	images := make([]ImageRef, 0, len(validImages))
	for _, url := range validImages {
		images = append(images, ImageRef{URL: url})
	}

	p := &Product{
		BaseEntity:  shared.NewBaseEntity(),
		UpstreamID:  &upstreamID,
		Source:      SourceAPI,
		Code:        u.Code,
		EAN:         u.EAN,
		PartNumber:  u.PartNumber,
		Desc0:       u.Desc0,
		Desc1:       u.Desc1,
		Desc2:       u.Desc2,
		Brand:       u.Brand,
		Category:    u.Category,
		Subcategory: u.Subcategory,
		Slug:        Slugify(u.Desc0),
		Dimensions: Dimensions{
			WeightGr:  u.WeightGr,
			HeightCm:  u.HeightCm,
			WidthCm:   u.WidthCm,
			LengthCm:  u.LengthCm,
			VolumeCm3: u.VolumeCm3,
		},
		NetPriceUSD: u.NetPriceUSD,
		Taxes:       taxes,
		Stock:       Stock{MarDelPlata: u.StockMDP, CABA: u.StockCABA},
		Images:      images,
		IsActive:    len(images) > 0,
	}
	p.Fingerprint = p.ComputeFingerprint()
	return p
}

// RejectedRecord is a feed element that failed decoding or validation
type RejectedRecord struct {
	Index    int
	ItemID   int64
	Category string
	Reason   string
}

// Context describes the record for error reports
func (r RejectedRecord) Context() string {
	if r.ItemID > 0 {
		return fmt.Sprintf("upstream item_id=%d", r.ItemID)
	}
	return fmt.Sprintf("upstream record #%d", r.Index)
}

// Error renders the rejection as a report line
func (r RejectedRecord) Error() string {
	return fmt.Sprintf("%s: %s", r.Context(), strings.TrimSpace(r.Reason))
}

// UpstreamCatalog is a fetched feed split into usable and quarantined records
type UpstreamCatalog struct {
	Items    []UpstreamProduct
	Rejected []RejectedRecord
}

// Size returns the number of records the supplier sent
func (c *UpstreamCatalog) Size() int {
	return len(c.Items) + len(c.Rejected)
}

// CatalogSource retrieves the supplier feed
type CatalogSource interface {
	FetchCatalog(ctx context.Context) (*UpstreamCatalog, error)
}

// ImageValidator keeps the reachable image URLs of a list, preserving order
type ImageValidator interface {
	ValidateAll(ctx context.Context, urls []string) []string
}
