package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultCurrency = "TRY"

// MapOrder переводит исходный заказ площадки в канонический.
// Это единственное место, которое разбирает варианты raw.Order по полям.
// Нераспознанный элемент, пустой идентификатор или некорректная сумма дают ErrMalformedResponse.
func MapOrder(tenantID string, account *models.Account, o raw.Order) (*models.CanonicalOrder, error) {
	order := &models.CanonicalOrder{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		AccountID:     account.ID,
		Platform:      o.Platform(),
		NativeOrderID: o.NativeID(),
		OrderedAt:     o.OccurredAt(),
		RawPayload:    o.Payload(),
		PayloadFormat: o.Format(),
		SyncedAt:      time.Now().UTC(),
	}

	var err error
	switch v := o.(type) {
	case *raw.TrendyolOrder:
		mapTrendyol(order, v)
	case *raw.WooOrder:
		mapWooCommerce(order, v)
	case *raw.N11Order:
		err = mapN11(order, v)
	case *raw.CiceksepetiOrder:
		mapCiceksepeti(order, v)
	case *raw.Malformed:
		err = v.Err
		if err == nil {
			err = errors.New("unrecognized element")
		}
	default:
		err = fmt.Errorf("unsupported raw order type %T", o)
	}
	if err == nil && order.NativeOrderID == "" {
		err = errors.New("native order id is empty")
	}
	if err != nil {
		return nil, connectors.NewError(connectors.ErrMalformedResponse, o.Platform(), "map", 0, o.Payload(), err)
	}

	order.Status = NormalizeStatus(order.Platform, order.NativeStatus)
	if order.Currency == "" {
		order.Currency = defaultCurrency
	}
	if order.Items == nil {
		order.Items = []models.LineItem{}
	}
	return order, nil
}

func mapTrendyol(order *models.CanonicalOrder, o *raw.TrendyolOrder) {
	order.NativeStatus = o.Status
	order.CustomerName = joinName(o.CustomerFirstName, o.CustomerLastName)
	order.TotalAmount = o.TotalPrice
	order.Currency = o.CurrencyCode
	for _, l := range o.Lines {
		order.Items = append(order.Items, models.LineItem{
			SKU:       l.MerchantSKU,
			Barcode:   l.Barcode,
			Name:      l.ProductName,
			Quantity:  l.Quantity,
			UnitPrice: l.Price,
		})
	}
}

func mapWooCommerce(order *models.CanonicalOrder, o *raw.WooOrder) {
	order.NativeStatus = o.Status
	order.CustomerName = joinName(o.Billing.FirstName, o.Billing.LastName)
	if order.CustomerName == "" {
		order.CustomerName = o.Billing.Company
	}
	order.TotalAmount = o.Total
	order.Currency = o.Currency
	for _, l := range o.LineItems {
		sku := l.SKU
		if sku == "" {
			sku = strconv.FormatInt(l.ProductID, 10)
		}
		order.Items = append(order.Items, models.LineItem{
			SKU:       sku,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.Price,
		})
	}
}

func mapN11(order *models.CanonicalOrder, o *raw.N11Order) error {
	total, err := parseAmount(o.TotalAmount)
	if err != nil {
		return fmt.Errorf("invalid totalAmount: %w", err)
	}
	order.NativeStatus = o.Status
	order.CustomerName = strings.TrimSpace(o.BuyerName)
	order.TotalAmount = total
	order.Currency = o.Currency

	for i, row := range o.Items {
		price, err := parseAmount(row.Price)
		if err != nil {
			return fmt.Errorf("invalid price in item %d: %w", i, err)
		}
		order.Items = append(order.Items, models.LineItem{
			SKU:       row.ProductSellerCode,
			Barcode:   row.Barcode,
			Name:      row.ProductName,
			Quantity:  row.Quantity,
			UnitPrice: price,
		})
	}
	return nil
}

func mapCiceksepeti(order *models.CanonicalOrder, o *raw.CiceksepetiOrder) {
	order.NativeStatus = o.StatusName
	if o.StatusID != 0 {
		order.NativeStatus = strconv.Itoa(o.StatusID)
	}
	order.CustomerName = strings.TrimSpace(o.CustomerName)
	order.TotalAmount = o.TotalAmount
	order.Currency = o.Currency
	for _, it := range o.Items {
		order.Items = append(order.Items, models.LineItem{
			SKU:       it.StockCode,
			Barcode:   it.Barcode,
			Name:      it.ProductName,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
}

// parseAmount пустая строка означает ноль; n11 может отдавать запятую как разделитель
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
