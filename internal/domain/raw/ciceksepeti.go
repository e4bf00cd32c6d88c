package raw

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// CiceksepetiOrder заказ Çiçeksepeti
type CiceksepetiOrder struct {
	source
	OrderID      int64                  `json:"orderId"`
	StatusID     int                    `json:"orderStatusId"`
	StatusName   string                 `json:"orderStatus"`
	CustomerName string                 `json:"customerName"`
	Currency     string                 `json:"currency"`
	TotalAmount  decimal.Decimal        `json:"totalAmount"`
	OrderDate    time.Time              `json:"orderDate"`
	Items        []CiceksepetiOrderItem `json:"items"`
}

// CiceksepetiOrderItem позиция заказа Çiçeksepeti
type CiceksepetiOrderItem struct {
	StockCode   string          `json:"stockCode"`
	Barcode     string          `json:"barcode"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

func (o *CiceksepetiOrder) Platform() models.Platform { return models.PlatformCiceksepeti }
func (o *CiceksepetiOrder) NativeID() string          { return strconv.FormatInt(o.OrderID, 10) }
func (o *CiceksepetiOrder) OccurredAt() time.Time     { return o.OrderDate.UTC() }

// DecodeCiceksepeti разбирает элемент orders из ответа Çiçeksepeti
func DecodeCiceksepeti(payload json.RawMessage) Order {
	var o CiceksepetiOrder
	if err := json.Unmarshal(payload, &o); err != nil {
		return NewMalformed(models.PlatformCiceksepeti, "", payload, models.PayloadJSON, err)
	}
	if o.OrderID == 0 {
		return NewMalformed(models.PlatformCiceksepeti, "", payload, models.PayloadJSON, errors.New("orderId is empty"))
	}
	o.source = source{payload: payload, format: models.PayloadJSON}
	return &o
}
