// Package trendyol коннектор Trendyol Seller API.
//
// Аутентификация Basic (base64 apiKey:apiSecret), окно выборки задается параметрами
// startDate/endDate в миллисекундах эпохи, страница ограничена параметром size (не более 200).
// Площадка отдает заказы не старше 180 суток включительно; окно одного запроса не шире 14 суток.
package trendyol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.trendyol.com/sapigw"

	pageSize    = 200
	maxPages    = 500
	chunkWidth  = 14 * 24 * time.Hour
	concurrency = 3
)

// Credentials учетные данные продавца Trendyol
type Credentials struct {
	SupplierID string `json:"supplierId" validate:"required"`
	APIKey     string `json:"apiKey" validate:"required"`
	APISecret  string `json:"apiSecret" validate:"required"`
}

// Connector коннектор Trendyol
type Connector struct {
	baseURL   string
	transport *connectors.Transport
}

// NewConnector создает коннектор; пустой baseURL означает продуктовый адрес
func NewConnector(baseURL string, timeout time.Duration) *Connector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Connector{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: connectors.NewTransport(models.PlatformTrendyol, timeout),
	}
}

func (c *Connector) Platform() models.Platform { return models.PlatformTrendyol }

func (c *Connector) Limits() connectors.Limits {
	return connectors.Limits{
		MaxWindow:   connectors.DefaultMaxWindow,
		ChunkWidth:  chunkWidth,
		PageSize:    pageSize,
		Concurrency: concurrency,
	}
}

type ordersPage struct {
	Page       int               `json:"page"`
	Size       int               `json:"size"`
	TotalPages int               `json:"totalPages"`
	Content    []json.RawMessage `json:"content"`
}

// FetchOrders выбирает пакеты за [r.From, r.To). Границы у площадки включительные и с точностью
// до миллисекунды: startDate = floor(From), endDate = ceil(To)-1мс, лишнее по краям отсекается по времени заказа.
func (c *Connector) FetchOrders(ctx context.Context, account *models.Account, r models.TimeRange) ([]raw.Order, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return nil, err
	}

	var orders []raw.Order
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("startDate", strconv.FormatInt(r.From.UnixMilli(), 10))
		q.Set("endDate", strconv.FormatInt(ceilMilli(r.To)-1, 10))
		q.Set("page", strconv.Itoa(page))
		q.Set("size", strconv.Itoa(pageSize))
		q.Set("orderByField", "CreatedDate")
		q.Set("orderByDirection", "ASC")

		endpoint := fmt.Sprintf("%s/suppliers/%s/orders?%s", base, url.PathEscape(creds.SupplierID), q.Encode())
		var body ordersPage
		if err := c.get(ctx, creds, endpoint, "orders", &body); err != nil {
			return nil, err
		}

		for _, item := range body.Content {
			o := raw.DecodeTrendyol(item)
			if _, ok := o.(*raw.Malformed); !ok && !r.Contains(o.OccurredAt()) {
				continue
			}
			orders = append(orders, o)
		}

		if len(body.Content) == 0 || page+1 >= body.TotalPages {
			break
		}
	}

	return orders, nil
}

func ceilMilli(t time.Time) int64 {
	ms := t.UnixMilli()
	if time.UnixMilli(ms).Before(t) {
		ms++
	}
	return ms
}

type productsPage struct {
	Page       int               `json:"page"`
	TotalPages int               `json:"totalPages"`
	Content    []trendyolProduct `json:"content"`
}

type trendyolProduct struct {
	ID            string          `json:"id"`
	Barcode       string          `json:"barcode"`
	StockCode     string          `json:"stockCode"`
	ProductMainID string          `json:"productMainId"`
	Title         string          `json:"title"`
	SalePrice     decimal.Decimal `json:"salePrice"`
	Quantity      int             `json:"quantity"`
}

// FetchCatalog возвращает товары продавца. Листинг Trendyol адресуется штрихкодом.
func (c *Connector) FetchCatalog(ctx context.Context, account *models.Account, query connectors.CatalogQuery) ([]models.RemoteListing, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return nil, err
	}

	limit := query.MaxItems
	if limit <= 0 {
		limit = 1000
	}

	var listings []models.RemoteListing
	for page := 0; page < maxPages && len(listings) < limit; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("size", strconv.Itoa(pageSize))
		if query.Barcode != "" {
			q.Set("barcode", query.Barcode)
		}
		if query.Code != "" {
			q.Set("stockCode", query.Code)
		}

		endpoint := fmt.Sprintf("%s/suppliers/%s/products?%s", base, url.PathEscape(creds.SupplierID), q.Encode())
		var body productsPage
		if err := c.get(ctx, creds, endpoint, "catalog", &body); err != nil {
			return nil, err
		}

		for _, p := range body.Content {
			listings = append(listings, models.RemoteListing{
				ListingID: p.Barcode,
				VariantID: p.ProductMainID,
				Code:      p.StockCode,
				Barcode:   p.Barcode,
				Title:     p.Title,
				Price:     p.SalePrice,
				Stock:     p.Quantity,
			})
		}

		if len(body.Content) == 0 || page+1 >= body.TotalPages {
			break
		}
	}

	if len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

type priceInventoryItem struct {
	Barcode   string      `json:"barcode"`
	Quantity  int         `json:"quantity"`
	SalePrice json.Number `json:"salePrice"`
	ListPrice json.Number `json:"listPrice"`
}

// PushPriceStock отправляет цену и остаток одним пакетом price-and-inventory
func (c *Connector) PushPriceStock(ctx context.Context, account *models.Account, update connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return connectors.PushReceipt{}, err
	}

	payload := struct {
		Items []priceInventoryItem `json:"items"`
	}{
		Items: []priceInventoryItem{{
			Barcode:   update.ListingID,
			Quantity:  update.Stock,
			SalePrice: json.Number(update.Price.StringFixed(2)),
			ListPrice: json.Number(update.Price.StringFixed(2)),
		}},
	}

	endpoint := fmt.Sprintf("%s/suppliers/%s/products/price-and-inventory", base, url.PathEscape(creds.SupplierID))
	req, err := connectors.NewJSONRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return connectors.PushReceipt{}, err
	}
	c.authorize(req, creds)

	resp, err := c.transport.Do(req, "push")
	if err != nil {
		return connectors.PushReceipt{}, err
	}

	var body struct {
		BatchRequestID string `json:"batchRequestId"`
	}
	if err := connectors.DecodeJSON(models.PlatformTrendyol, "push", resp, &body); err != nil {
		return connectors.PushReceipt{}, err
	}
	if body.BatchRequestID == "" {
		return connectors.PushReceipt{}, connectors.NewError(connectors.ErrMalformedResponse, models.PlatformTrendyol,
			"push", resp.StatusCode, resp.Body, fmt.Errorf("batchRequestId is empty"))
	}

	return connectors.PushReceipt{Reference: body.BatchRequestID, Price: update.Price, Stock: update.Stock}, nil
}

func (c *Connector) prepare(account *models.Account) (*Credentials, string, error) {
	var creds Credentials
	if err := connectors.DecodeCredentials(account, &creds); err != nil {
		return nil, "", err
	}
	base := c.baseURL
	if account.BaseURL != "" {
		base = strings.TrimRight(account.BaseURL, "/")
	}
	return &creds, base, nil
}

func (c *Connector) authorize(req *http.Request, creds *Credentials) {
	token := base64.StdEncoding.EncodeToString([]byte(creds.APIKey + ":" + creds.APISecret))
	req.Header.Set("Authorization", "Basic "+token)
	req.Header.Set("User-Agent", creds.SupplierID+" - SelfIntegration")
}

func (c *Connector) get(ctx context.Context, creds *Credentials, endpoint, op string, v interface{}) error {
	req, err := connectors.NewJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.authorize(req, creds)

	resp, err := c.transport.Do(req, op)
	if err != nil {
		return err
	}
	return connectors.DecodeJSON(models.PlatformTrendyol, op, resp, v)
}
