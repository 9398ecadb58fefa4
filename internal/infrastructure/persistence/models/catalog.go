package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for the Product domain entity.
// API rows are unique by upstream_id; manual rows have no upstream_id at all.
type ProductModel struct {
	BaseModel
	UpstreamID  *int64                `gorm:"column:upstream_id;uniqueIndex:idx_products_api_upstream,where:source = 'api';check:chk_products_upstream_source,(source = 'api') = (upstream_id IS NOT NULL)"`
	Source      catalog.ProductSource `gorm:"column:source;type:varchar(10);not null;index;check:chk_products_source,source IN ('api','manual')"`
	Code        string                `gorm:"column:code;type:varchar(64)"`
	EAN         string                `gorm:"column:ean;type:varchar(64)"`
	PartNumber  string                `gorm:"column:part_number;type:varchar(128)"`
	Desc0       string                `gorm:"column:desc0;type:varchar(500);not null;index:idx_products_active_title,priority:2"`
	Desc1       string                `gorm:"column:desc1;type:text"`
	Desc2       string                `gorm:"column:desc2;type:text"`
	Brand       string                `gorm:"column:brand;type:varchar(128)"`
	Category    string                `gorm:"column:category;type:varchar(128);not null;index"`
	Subcategory string                `gorm:"column:subcategory;type:varchar(128)"`
	Description string                `gorm:"column:description;type:text"`
	Slug        string                `gorm:"column:slug;type:varchar(500);index"`
	WeightGr    float64               `gorm:"column:weight_gr;not null"`
	HeightCm    float64               `gorm:"column:height_cm;not null"`
	WidthCm     float64               `gorm:"column:width_cm;not null"`
	LengthCm    float64               `gorm:"column:length_cm;not null"`
	VolumeCm3   float64               `gorm:"column:volume_cm3;not null"`
	NetPriceUSD decimal.Decimal       `gorm:"column:net_price_usd;type:decimal(18,4);not null"`
	Taxes       []catalog.TaxLine     `gorm:"column:taxes;type:jsonb;serializer:json"`
	StockMDP    int                   `gorm:"column:stock_mdp;not null"`
	StockCABA   int                   `gorm:"column:stock_caba;not null"`
	Images      []catalog.ImageRef    `gorm:"column:images;type:jsonb;serializer:json"`
	IsActive    bool                  `gorm:"column:is_active;not null;index:idx_products_active_title,priority:1"`
	SyncHash    string                `gorm:"column:sync_hash;type:varchar(64)"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// SyncColumns are the columns an upsert overwrites on conflict.
// Identity, source and created_at are never rewritten.
var SyncColumns = []string{
	"code", "ean", "part_number",
	"desc0", "desc1", "desc2",
	"brand", "category", "subcategory", "slug",
	"weight_gr", "height_cm", "width_cm", "length_cm", "volume_cm3",
	"net_price_usd", "taxes",
	"stock_mdp", "stock_caba",
	"images", "is_active", "sync_hash",
	"updated_at",
}

// ToDomain converts the persistence model to a domain Product entity.
func (m *ProductModel) ToDomain() *catalog.Product {
	taxes := m.Taxes
	if taxes == nil {
		taxes = []catalog.TaxLine{}
	}
	images := m.Images
	if images == nil {
		images = []catalog.ImageRef{}
	}

	return &catalog.Product{
		BaseEntity:  m.BaseModel.ToDomain(),
		UpstreamID:  m.UpstreamID,
		Source:      m.Source,
		Code:        m.Code,
		EAN:         m.EAN,
		PartNumber:  m.PartNumber,
		Desc0:       m.Desc0,
		Desc1:       m.Desc1,
		Desc2:       m.Desc2,
		Brand:       m.Brand,
		Category:    m.Category,
		Subcategory: m.Subcategory,
		Description: m.Description,
		Slug:        m.Slug,
		Dimensions: catalog.Dimensions{
			WeightGr:  m.WeightGr,
			HeightCm:  m.HeightCm,
			WidthCm:   m.WidthCm,
			LengthCm:  m.LengthCm,
			VolumeCm3: m.VolumeCm3,
		},
		NetPriceUSD: m.NetPriceUSD,
		Taxes:       taxes,
		Stock:       catalog.Stock{MarDelPlata: m.StockMDP, CABA: m.StockCABA},
		Images:      images,
		IsActive:    m.IsActive,
		Fingerprint: m.SyncHash,
	}
}

// FromDomain populates the persistence model from a domain Product entity.
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.UpstreamID = p.UpstreamID
	m.Source = p.Source
	m.Code = p.Code
	m.EAN = p.EAN
	m.PartNumber = p.PartNumber
	m.Desc0 = p.Desc0
	m.Desc1 = p.Desc1
	m.Desc2 = p.Desc2
	m.Brand = p.Brand
	m.Category = p.Category
	m.Subcategory = p.Subcategory
	m.Description = p.Description
	m.Slug = p.Slug
	m.WeightGr = p.Dimensions.WeightGr
	m.HeightCm = p.Dimensions.HeightCm
	m.WidthCm = p.Dimensions.WidthCm
	m.LengthCm = p.Dimensions.LengthCm
	m.VolumeCm3 = p.Dimensions.VolumeCm3
	m.NetPriceUSD = p.NetPriceUSD
	m.Taxes = p.Taxes
	m.StockMDP = p.Stock.MarDelPlata
	m.StockCABA = p.Stock.CABA
	m.Images = p.Images
	m.IsActive = p.IsActive
	m.SyncHash = p.Fingerprint
}

// ProductModelFromDomain creates a new ProductModel from a domain Product entity.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}

// SyncLockModel is a named, expiring lease row.
type SyncLockModel struct {
	Key        string    `gorm:"column:key;type:varchar(100);primaryKey"`
	Holder     string    `gorm:"column:holder;type:varchar(64);not null"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null"`
	AcquiredAt time.Time `gorm:"column:acquired_at;not null"`
}

// TableName returns the table name for GORM
func (SyncLockModel) TableName() string {
	return "sync_locks"
}
