package raw

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// wooTimeLayout формат date_created_gmt (без зоны, UTC)
const wooTimeLayout = "2006-01-02T15:04:05"

// WooOrder заказ WooCommerce REST v3
type WooOrder struct {
	source
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	Status         string          `json:"status"`
	Currency       string          `json:"currency"`
	Total          decimal.Decimal `json:"total"`
	DateCreatedGMT string          `json:"date_created_gmt"`
	Billing        struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Company   string `json:"company"`
	} `json:"billing"`
	LineItems []WooLineItem `json:"line_items"`

	createdAt time.Time
}

// WooLineItem позиция заказа WooCommerce
type WooLineItem struct {
	ProductID   int64           `json:"product_id"`
	VariationID int64           `json:"variation_id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (o *WooOrder) Platform() models.Platform { return models.PlatformWooCommerce }
func (o *WooOrder) NativeID() string          { return strconv.FormatInt(o.ID, 10) }
func (o *WooOrder) OccurredAt() time.Time     { return o.createdAt }

// DecodeWooCommerce разбирает элемент массива заказов WooCommerce
func DecodeWooCommerce(payload json.RawMessage) Order {
	var o WooOrder
	if err := json.Unmarshal(payload, &o); err != nil {
		return NewMalformed(models.PlatformWooCommerce, "", payload, models.PayloadJSON, err)
	}
	if o.ID == 0 {
		return NewMalformed(models.PlatformWooCommerce, "", payload, models.PayloadJSON, fmt.Errorf("order id is empty"))
	}
	created, err := time.ParseInLocation(wooTimeLayout, o.DateCreatedGMT, time.UTC)
	if err != nil {
		return NewMalformed(models.PlatformWooCommerce, strconv.FormatInt(o.ID, 10), payload, models.PayloadJSON,
			fmt.Errorf("invalid date_created_gmt: %w", err))
	}
	o.createdAt = created
	o.source = source{payload: payload, format: models.PayloadJSON}
	return &o
}
