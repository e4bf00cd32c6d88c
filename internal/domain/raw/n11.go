package raw

import (
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
)

// N11DateTimeLayout формат createDate в ответах n11
const N11DateTimeLayout = "02/01/2006 15:04"

// N11Location часовой пояс площадки n11 (Турция, UTC+3 без перехода на летнее время)
var N11Location = time.FixedZone("TRT", 3*60*60)

// N11Order элемент orderList/order ответа DetailedOrderList
type N11Order struct {
	source
	XMLName     xml.Name      `xml:"order"`
	ID          string        `xml:"id"`
	OrderNumber string        `xml:"orderNumber"`
	Status      string        `xml:"status"`
	CreateDate  string        `xml:"createDate"`
	TotalAmount string        `xml:"totalAmount"`
	Currency    string        `xml:"currency"`
	BuyerName   string        `xml:"buyer>fullName"`
	Items       []N11OrderRow `xml:"itemList>item"`

	createdAt time.Time
}

// N11OrderRow позиция заказа n11
type N11OrderRow struct {
	ProductSellerCode string `xml:"productSellerCode"`
	Barcode           string `xml:"gtin"`
	ProductName       string `xml:"productName"`
	Quantity          int    `xml:"quantity"`
	Price             string `xml:"price"`
	Status            string `xml:"status"`
}

func (o *N11Order) Platform() models.Platform { return models.PlatformN11 }
func (o *N11Order) NativeID() string          { return o.ID }
func (o *N11Order) OccurredAt() time.Time     { return o.createdAt }

// DecodeN11 разбирает XML элемента order
func DecodeN11(payload []byte) Order {
	var o N11Order
	if err := xml.Unmarshal(payload, &o); err != nil {
		return NewMalformed(models.PlatformN11, "", payload, models.PayloadXML, err)
	}
	if o.ID == "" {
		return NewMalformed(models.PlatformN11, "", payload, models.PayloadXML, errors.New("order id is empty"))
	}
	created, err := time.ParseInLocation(N11DateTimeLayout, o.CreateDate, N11Location)
	if err != nil {
		return NewMalformed(models.PlatformN11, o.ID, payload, models.PayloadXML, fmt.Errorf("invalid createDate: %w", err))
	}
	o.createdAt = created.UTC()
	o.source = source{payload: payload, format: models.PayloadXML}
	return &o
}
