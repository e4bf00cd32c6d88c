// Package ciceksepeti коннектор Çiçeksepeti Seller API.
//
// Токен передается заголовком Authorization без схемы, выборка заказов по startDate/endDate (RFC 3339)
// с постраничной выдачей через offset/limit до totalCount.
package ciceksepeti

import (
	"context"
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
	DefaultBaseURL = "https://apis.ciceksepeti.com/api/v1"

	pageSize    = 100
	maxPages    = 500
	chunkWidth  = 14 * 24 * time.Hour
	concurrency = 3
)

// Credentials ключ API продавца
type Credentials struct {
	APIKey string `json:"apiKey" validate:"required"`
}

// Connector коннектор Çiçeksepeti
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
		transport: connectors.NewTransport(models.PlatformCiceksepeti, timeout),
	}
}

func (c *Connector) Platform() models.Platform { return models.PlatformCiceksepeti }

func (c *Connector) Limits() connectors.Limits {
	return connectors.Limits{
		MaxWindow:   connectors.DefaultMaxWindow,
		ChunkWidth:  chunkWidth,
		PageSize:    pageSize,
		Concurrency: concurrency,
	}
}

type ordersPage struct {
	TotalCount int               `json:"totalCount"`
	Orders     []json.RawMessage `json:"supplierOrderListWithBranch"`
}

// FetchOrders выбирает заказы за [r.From, r.To). startDate и endDate у площадки включительные
// и посекундные, поэтому endDate = ceil(To)-1с, а лишнее по краям отсекается по времени заказа.
func (c *Connector) FetchOrders(ctx context.Context, account *models.Account, r models.TimeRange) ([]raw.Order, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return nil, err
	}

	var orders []raw.Order
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("startDate", r.From.UTC().Format(time.RFC3339))
		q.Set("endDate", models.CeilSecond(r.To).Add(-time.Second).UTC().Format(time.RFC3339))
		q.Set("offset", strconv.Itoa(page*pageSize))
		q.Set("limit", strconv.Itoa(pageSize))

		resp, err := c.do(ctx, creds, http.MethodGet, base+"/Order/GetOrders?"+q.Encode(), nil, "orders")
		if err != nil {
			return nil, err
		}

		var p ordersPage
		if err := connectors.DecodeJSON(models.PlatformCiceksepeti, "orders", resp, &p); err != nil {
			return nil, err
		}
		for _, item := range p.Orders {
			o := raw.DecodeCiceksepeti(item)
			if _, ok := o.(*raw.Malformed); !ok && !r.Contains(o.OccurredAt()) {
				continue
			}
			orders = append(orders, o)
		}

		if len(p.Orders) < pageSize || (page+1)*pageSize >= p.TotalCount {
			break
		}
	}

	return orders, nil
}

type productsPage struct {
	TotalCount int `json:"totalCount"`
	Products   []struct {
		ProductCode string          `json:"productCode"`
		StockCode   string          `json:"stockCode"`
		Barcode     string          `json:"barcode"`
		ProductName string          `json:"productName"`
		SalesPrice  decimal.Decimal `json:"salesPrice"`
		StockQty    int             `json:"stockQuantity"`
	} `json:"products"`
}

// FetchCatalog возвращает листинги; ListingID у Çiçeksepeti это stockCode
func (c *Connector) FetchCatalog(ctx context.Context, account *models.Account, query connectors.CatalogQuery) ([]models.RemoteListing, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return nil, err
	}

	limit := query.MaxItems
	if limit <= 0 {
		limit = 1000
	}
	search := strings.ToLower(query.Search)

	var listings []models.RemoteListing
	for page := 1; page <= maxPages && len(listings) < limit; page++ {
		q := url.Values{}
		q.Set("PageSize", strconv.Itoa(pageSize))
		q.Set("Page", strconv.Itoa(page))
		if query.Code != "" {
			q.Set("StockCode", query.Code)
		}

		resp, err := c.do(ctx, creds, http.MethodGet, base+"/Products?"+q.Encode(), nil, "catalog")
		if err != nil {
			return nil, err
		}

		var p productsPage
		if err := connectors.DecodeJSON(models.PlatformCiceksepeti, "catalog", resp, &p); err != nil {
			return nil, err
		}
		for _, pr := range p.Products {
			if query.Barcode != "" && pr.Barcode != query.Barcode {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(pr.ProductName), search) {
				continue
			}
			listings = append(listings, models.RemoteListing{
				ListingID: pr.StockCode,
				VariantID: pr.ProductCode,
				Code:      pr.StockCode,
				Barcode:   pr.Barcode,
				Title:     pr.ProductName,
				Price:     pr.SalesPrice,
				Stock:     pr.StockQty,
			})
		}

		if len(p.Products) < pageSize || page*pageSize >= p.TotalCount {
			break
		}
	}

	if len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

type stockPriceItem struct {
	StockCode     string      `json:"stockCode"`
	StockQuantity int         `json:"stockQuantity"`
	ListPrice     json.Number `json:"listPrice"`
	SalesPrice    json.Number `json:"salesPrice"`
}

type stockPriceRequest struct {
	Items []stockPriceItem `json:"items"`
}

type batchResponse struct {
	BatchID string `json:"batchId"`
}

// PushPriceStock ставит обновление в пакетную очередь площадки и возвращает идентификатор пакета
func (c *Connector) PushPriceStock(ctx context.Context, account *models.Account, update connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return connectors.PushReceipt{}, err
	}

	price := json.Number(update.Price.StringFixed(2))
	body := stockPriceRequest{Items: []stockPriceItem{{
		StockCode:     update.ListingID,
		StockQuantity: update.Stock,
		ListPrice:     price,
		SalesPrice:    price,
	}}}

	resp, err := c.do(ctx, creds, http.MethodPut, base+"/Products/price-and-stock", body, "push")
	if err != nil {
		return connectors.PushReceipt{}, err
	}

	var batch batchResponse
	if err := connectors.DecodeJSON(models.PlatformCiceksepeti, "push", resp, &batch); err != nil {
		return connectors.PushReceipt{}, err
	}
	if batch.BatchID == "" {
		return connectors.PushReceipt{}, connectors.NewError(connectors.ErrMalformedResponse, models.PlatformCiceksepeti,
			"push", resp.StatusCode, resp.Body, fmt.Errorf("batchId is empty"))
	}

	return connectors.PushReceipt{Reference: batch.BatchID, Price: update.Price, Stock: update.Stock}, nil
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

func (c *Connector) do(ctx context.Context, creds *Credentials, method, endpoint string, body interface{}, op string) (*connectors.Response, error) {
	req, err := connectors.NewJSONRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", creds.APIKey)
	return c.transport.Do(req, op)
}
