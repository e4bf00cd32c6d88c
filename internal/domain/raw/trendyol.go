package raw

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// TrendyolOrder пакет отгрузки Trendyol
type TrendyolOrder struct {
	source
	PackageID         int64           `json:"id"`
	OrderNumber       string          `json:"orderNumber"`
	Status            string          `json:"status"`
	CustomerFirstName string          `json:"customerFirstName"`
	CustomerLastName  string          `json:"customerLastName"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	CurrencyCode      string          `json:"currencyCode"`
	OrderDate         int64           `json:"orderDate"` // epoch ms
	Lines             []TrendyolLine  `json:"lines"`

	packages []int64
	parts    []json.RawMessage
}

// TrendyolLine строка пакета Trendyol
type TrendyolLine struct {
	MerchantSKU string          `json:"merchantSku"`
	Barcode     string          `json:"barcode"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (o *TrendyolOrder) Platform() models.Platform { return models.PlatformTrendyol }
func (o *TrendyolOrder) NativeID() string          { return o.OrderNumber }
func (o *TrendyolOrder) OccurredAt() time.Time     { return time.UnixMilli(o.OrderDate).UTC() }

// withPackage добавляет к заказу еще один пакет с тем же orderNumber.
// Повтор уже учтенного пакета ничего не меняет. Исходный ответ собранного заказа
// это JSON-массив пакетов в порядке поступления.
func (o *TrendyolOrder) withPackage(p *TrendyolOrder) *TrendyolOrder {
	ids, parts := o.packages, o.parts
	if ids == nil {
		ids, parts = []int64{o.PackageID}, []json.RawMessage{o.payload}
	}
	for _, id := range ids {
		if id == p.PackageID {
			return o
		}
	}

	merged := *o
	merged.packages = append(append([]int64(nil), ids...), p.PackageID)
	merged.parts = append(append([]json.RawMessage(nil), parts...), p.payload)
	merged.Lines = append(append([]TrendyolLine(nil), o.Lines...), p.Lines...)
	merged.TotalPrice = o.TotalPrice.Add(p.TotalPrice)
	if p.OrderDate < o.OrderDate {
		merged.OrderDate = p.OrderDate
	}

	payload := []byte{'['}
	for i, part := range merged.parts {
		if i > 0 {
			payload = append(payload, ',')
		}
		payload = append(payload, part...)
	}
	merged.source = source{payload: append(payload, ']'), format: models.PayloadJSON}
	return &merged
}

// DecodeTrendyol разбирает элемент content из ответа Trendyol
func DecodeTrendyol(payload json.RawMessage) Order {
	var o TrendyolOrder
	if err := json.Unmarshal(payload, &o); err != nil {
		return NewMalformed(models.PlatformTrendyol, "", payload, models.PayloadJSON, err)
	}
	if o.OrderNumber == "" {
		return NewMalformed(models.PlatformTrendyol, "", payload, models.PayloadJSON, errors.New("orderNumber is empty"))
	}
	o.source = source{payload: payload, format: models.PayloadJSON}
	return &o
}
