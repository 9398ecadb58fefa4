package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
)

// ProductSource identifies who owns a product's lifecycle
type ProductSource string

const (
	// SourceAPI products are created, overwritten and deleted by catalog sync only
	SourceAPI ProductSource = "api"
	// SourceManual products are authored locally and never touched by sync
	SourceManual ProductSource = "manual"
)

// IsValid reports whether the source is a known value
func (s ProductSource) IsValid() bool {
	return s == SourceAPI || s == SourceManual
}

// ImageRef is an image reference kept on a product
type ImageRef struct {
	URL string `json:"url"`
}

// TaxLine is a single tax entry applied to the net price
type TaxLine struct {
	Description string          `json:"imp_desc"`
	Percentage  decimal.Decimal `json:"imp_porcentaje"`
}

// Dimensions holds the physical attributes reported by the supplier
type Dimensions struct {
	WeightGr  float64 `json:"peso_gr"`
	HeightCm  float64 `json:"alto_cm"`
	WidthCm   float64 `json:"ancho_cm"`
	LengthCm  float64 `json:"largo_cm"`
	VolumeCm3 float64 `json:"volumen_cm3"`
}

// Stock holds per-location stock counts
type Stock struct {
	MarDelPlata int `json:"stock_mdp"`
	CABA        int `json:"stock_caba"`
}

// Product is a storefront catalog entry.
//
// UpstreamID is set if and only if Source is SourceAPI. For API products
// IsActive mirrors whether at least one image survived validation.
type Product struct {
	shared.BaseEntity
	UpstreamID  *int64
	Source      ProductSource
	Code        string
	EAN         string
	PartNumber  string
	Desc0       string
	Desc1       string
	Desc2       string
	Brand       string
	Category    string
	Subcategory string
	Description string
	Slug        string
	Dimensions  Dimensions
	NetPriceUSD decimal.Decimal
	Taxes       []TaxLine
	Stock       Stock
	Images      []ImageRef
	IsActive    bool
	// Fingerprint is a digest of every field sync writes; equal fingerprints mean a no-op write.
	Fingerprint string
}

// NewManualProduct creates a locally authored product
func NewManualProduct(title, category string) (*Product, error) {
	if strings.TrimSpace(title) == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Product title cannot be empty")
	}
	if strings.TrimSpace(category) == "" {
		return nil, shared.NewDomainError("INVALID_CATEGORY", "Product category cannot be empty")
	}

	return &Product{
		BaseEntity: shared.NewBaseEntity(),
		Source:     SourceManual,
		Desc0:      title,
		Category:   category,
		Slug:       Slugify(title),
		Taxes:      []TaxLine{},
		Images:     []ImageRef{},
		IsActive:   true,
	}, nil
}

// Title returns the primary description line
func (p *Product) Title() string {
	return p.Desc0
}

// ImageURLs returns the image URLs in order
func (p *Product) ImageURLs() []string {
	urls := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		urls = append(urls, img.URL)
	}
	return urls
}

// IsFromAPI reports whether the product is owned by catalog sync
func (p *Product) IsFromAPI() bool {
	return p.Source == SourceAPI
}

// Validate checks the identity invariants of the product
func (p *Product) Validate() error {
	if !p.Source.IsValid() {
		return shared.NewDomainError("INVALID_SOURCE", "Product source must be api or manual")
	}
	if p.Source == SourceAPI && p.UpstreamID == nil {
		return shared.NewDomainError("MISSING_UPSTREAM_ID", "API products must carry an upstream id")
	}
	if p.Source == SourceManual && p.UpstreamID != nil {
		return shared.NewDomainError("UNEXPECTED_UPSTREAM_ID", "Manual products cannot carry an upstream id")
	}
	if strings.TrimSpace(p.Desc0) == "" {
		return shared.NewDomainError("INVALID_TITLE", "Product title cannot be empty")
	}
	if strings.TrimSpace(p.Category) == "" {
		return shared.NewDomainError("INVALID_CATEGORY", "Product category cannot be empty")
	}
	return nil
}

// fingerprintFields lists what sync owns; identity and timestamps are excluded.
type fingerprintFields struct {
	UpstreamID  *int64          `json:"u"`
	Code        string          `json:"c"`
	EAN         string          `json:"e"`
	PartNumber  string          `json:"pn"`
	Desc0       string          `json:"d0"`
	Desc1       string          `json:"d1"`
	Desc2       string          `json:"d2"`
	Brand       string          `json:"b"`
	Category    string          `json:"cat"`
	Subcategory string          `json:"sub"`
	Slug        string          `json:"s"`
	Dimensions  Dimensions      `json:"dim"`
	NetPriceUSD decimal.Decimal `json:"p"`
	Taxes       []TaxLine       `json:"t"`
	Stock       Stock           `json:"st"`
	Images      []ImageRef      `json:"i"`
	IsActive    bool            `json:"a"`
}

// ComputeFingerprint returns a stable digest of the sync-owned fields
func (p *Product) ComputeFingerprint() string {
	payload, err := json.Marshal(fingerprintFields{
		UpstreamID:  p.UpstreamID,
		Code:        p.Code,
		EAN:         p.EAN,
		PartNumber:  p.PartNumber,
		Desc0:       p.Desc0,
		Desc1:       p.Desc1,
		Desc2:       p.Desc2,
		Brand:       p.Brand,
		Category:    p.Category,
		Subcategory: p.Subcategory,
		Slug:        p.Slug,
		Dimensions:  p.Dimensions,
		NetPriceUSD: p.NetPriceUSD,
		Taxes:       p.Taxes,
		Stock:       p.Stock,
		Images:      p.Images,
		IsActive:    p.IsActive,
	})
	if err != nil {
		// every field is a plain value; Marshal cannot fail here
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SyncState is the stored view of an API product used to classify sync writes
type SyncState struct {
	ID          uuid.UUID
	Fingerprint string
}
