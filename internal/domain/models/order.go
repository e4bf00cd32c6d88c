package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayloadFormat формат сохраненного исходного ответа площадки
type PayloadFormat string

const (
	PayloadJSON PayloadFormat = "json"
	PayloadXML  PayloadFormat = "xml"
)

// CanonicalOrder единое представление продажи независимо от площадки.
// Пара (TenantID, Platform, NativeOrderID) уникальна.
type CanonicalOrder struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	AccountID     string          `json:"account_id"`
	Platform      Platform        `json:"platform"`
	NativeOrderID string          `json:"native_order_id"`
	Status        OrderStatus     `json:"status"`
	NativeStatus  string          `json:"native_status"`
	CustomerName  string          `json:"customer_name"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	OrderedAt     time.Time       `json:"ordered_at"`
	Items         []LineItem      `json:"items"`
	RawPayload    []byte          `json:"-"`
	PayloadFormat PayloadFormat   `json:"payload_format"`
	SyncedAt      time.Time       `json:"synced_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LineItem позиция заказа
type LineItem struct {
	SKU       string          `json:"sku"`
	Barcode   string          `json:"barcode,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderKey естественный ключ заказа
type OrderKey struct {
	TenantID      string
	Platform      Platform
	NativeOrderID string
}

// Key возвращает естественный ключ заказа
func (o *CanonicalOrder) Key() OrderKey {
	return OrderKey{TenantID: o.TenantID, Platform: o.Platform, NativeOrderID: o.NativeOrderID}
}
