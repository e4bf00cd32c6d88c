package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product товар локального каталога арендатора
type Product struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Code      string          `json:"code"`
	Barcode   string          `json:"barcode,omitempty"`
	Name      string          `json:"name"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LinkStatus состояние связи товара с листингом
type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusInactive LinkStatus = "inactive"
)

// MatchMethod способ, которым была установлена связь
type MatchMethod string

const (
	MatchedByCode      MatchMethod = "code"
	MatchedByBarcode   MatchMethod = "barcode"
	MatchedByManual    MatchMethod = "manual"
	MatchedByPublished MatchMethod = "published"
)

// ProductLink связь локального товара с листингом на одном аккаунте.
// Уникальна по (ProductID, AccountID).
type ProductLink struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	ProductID       string          `json:"product_id"`
	AccountID       string          `json:"account_id"`
	RemoteListingID string          `json:"remote_listing_id"`
	RemoteVariantID string          `json:"remote_variant_id,omitempty"`
	RemotePrice     decimal.Decimal `json:"remote_price"`
	RemoteStock     int             `json:"remote_stock"`
	Status          LinkStatus      `json:"status"`
	MatchedBy       MatchMethod     `json:"matched_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RemoteListing листинг площадки в каноническом виде
type RemoteListing struct {
	ListingID string          `json:"listing_id" validate:"required"`
	VariantID string          `json:"variant_id,omitempty"`
	Code      string          `json:"code,omitempty"`
	Barcode   string          `json:"barcode,omitempty"`
	Title     string          `json:"title,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
}

// MatchResult результат сопоставления одного листинга
type MatchResult struct {
	Listing   RemoteListing `json:"listing"`
	Matched   bool          `json:"matched"`
	MatchedBy MatchMethod   `json:"matched_by,omitempty"`
	ProductID string        `json:"product_id,omitempty"`
	Link      *ProductLink  `json:"link,omitempty"`
}

// AutoMatchResult итог автоматического сопоставления каталога аккаунта
type AutoMatchResult struct {
	Total     int            `json:"total"`
	Matched   int            `json:"matched"`
	Unmatched int            `json:"unmatched"`
	Results   []*MatchResult `json:"results"`
}
