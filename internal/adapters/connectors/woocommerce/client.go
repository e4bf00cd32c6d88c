// Package woocommerce коннектор WooCommerce REST API v3.
//
// consumer_key/consumer_secret передаются параметрами запроса, фильтрация по времени
// через ISO-8601 параметры after/before (обе границы строгие), страницы через page/per_page
// и заголовок X-WP-TotalPages. Выборка ограничена 180 сутками включительно, один запрос - 30 суток.
package woocommerce

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
	apiPrefix = "/wp-json/wc/v3"

	perPage     = 100
	maxPages    = 500
	chunkWidth  = 30 * 24 * time.Hour
	concurrency = 2

	isoLayout = "2006-01-02T15:04:05Z"
)

// Credentials ключи REST API магазина
type Credentials struct {
	StoreURL       string `json:"storeUrl" validate:"omitempty,url"`
	ConsumerKey    string `json:"consumerKey" validate:"required"`
	ConsumerSecret string `json:"consumerSecret" validate:"required"`
}

// Connector коннектор WooCommerce
type Connector struct {
	transport *connectors.Transport
}

// NewConnector создает коннектор; адрес магазина берется из аккаунта
func NewConnector(timeout time.Duration) *Connector {
	return &Connector{transport: connectors.NewTransport(models.PlatformWooCommerce, timeout)}
}

func (c *Connector) Platform() models.Platform { return models.PlatformWooCommerce }

func (c *Connector) Limits() connectors.Limits {
	return connectors.Limits{
		MaxWindow:   connectors.DefaultMaxWindow,
		ChunkWidth:  chunkWidth,
		PageSize:    perPage,
		Concurrency: concurrency,
	}
}

// FetchOrders выбирает заказы за [r.From, r.To). after и before строгие и посекундные:
// after = floor(From)-1с, before = ceil(To), лишнее по краям отсекается по времени заказа.
func (c *Connector) FetchOrders(ctx context.Context, account *models.Account, r models.TimeRange) ([]raw.Order, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return nil, err
	}

	var orders []raw.Order
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("after", r.From.UTC().Add(-time.Second).Format(isoLayout))
		q.Set("before", models.CeilSecond(r.To).UTC().Format(isoLayout))
		q.Set("dates_are_gmt", "true")
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))
		q.Set("orderby", "date")
		q.Set("order", "asc")

		resp, err := c.do(ctx, creds, http.MethodGet, base+"/orders", q, nil, "orders")
		if err != nil {
			return nil, err
		}

		var items []json.RawMessage
		if err := connectors.DecodeJSON(models.PlatformWooCommerce, "orders", resp, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			o := raw.DecodeWooCommerce(item)
			// after/before у WooCommerce строгие и посекундные: отсекаем все, что вне полуинтервала
			if _, ok := o.(*raw.Malformed); !ok && !r.Contains(o.OccurredAt()) {
				continue
			}
			orders = append(orders, o)
		}

		if len(items) < perPage || page >= totalPages(resp) {
			break
		}
	}

	return orders, nil
}

func totalPages(resp *connectors.Response) int {
	n, err := strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
	if err != nil {
		return maxPages
	}
	return n
}

type wooProduct struct {
	ID             int64  `json:"id"`
	ParentID       int64  `json:"parent_id"`
	SKU            string `json:"sku"`
	GlobalUniqueID string `json:"global_unique_id"`
	Name           string `json:"name"`
	// у вариативных товаров и черновиков цена бывает пустой строкой
	Price         string `json:"price"`
	StockQuantity *int   `json:"stock_quantity"`
}

func (p wooProduct) listing() models.RemoteListing {
	l := models.RemoteListing{
		ListingID: strconv.FormatInt(p.ID, 10),
		Code:      p.SKU,
		Barcode:   p.GlobalUniqueID,
		Title:     p.Name,
	}
	if price, err := decimal.NewFromString(p.Price); err == nil {
		l.Price = price
	}
	if p.ParentID != 0 {
		l.ListingID = strconv.FormatInt(p.ParentID, 10)
		l.VariantID = strconv.FormatInt(p.ID, 10)
	}
	if p.StockQuantity != nil {
		l.Stock = *p.StockQuantity
	}
	return l
}

// FetchCatalog ищет товары по SKU или строке поиска
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
	for page := 1; page <= maxPages && len(listings) < limit; page++ {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))
		if query.Code != "" {
			q.Set("sku", query.Code)
		}
		if query.Search != "" {
			q.Set("search", query.Search)
		}

		resp, err := c.do(ctx, creds, http.MethodGet, base+"/products", q, nil, "catalog")
		if err != nil {
			return nil, err
		}

		var products []wooProduct
		if err := connectors.DecodeJSON(models.PlatformWooCommerce, "catalog", resp, &products); err != nil {
			return nil, err
		}
		for _, p := range products {
			if query.Barcode != "" && p.GlobalUniqueID != query.Barcode {
				continue
			}
			listings = append(listings, p.listing())
		}

		if len(products) < perPage || page >= totalPages(resp) {
			break
		}
	}

	if len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

type stockPriceBody struct {
	RegularPrice  string `json:"regular_price"`
	StockQuantity int    `json:"stock_quantity"`
	ManageStock   bool   `json:"manage_stock"`
}

// PushPriceStock обновляет товар или вариацию
func (c *Connector) PushPriceStock(ctx context.Context, account *models.Account, update connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return connectors.PushReceipt{}, err
	}

	endpoint := fmt.Sprintf("%s/products/%s", base, url.PathEscape(update.ListingID))
	if update.VariantID != "" {
		endpoint = fmt.Sprintf("%s/products/%s/variations/%s", base, url.PathEscape(update.ListingID), url.PathEscape(update.VariantID))
	}

	body := stockPriceBody{
		RegularPrice:  update.Price.StringFixed(2),
		StockQuantity: update.Stock,
		ManageStock:   true,
	}
	resp, err := c.do(ctx, creds, http.MethodPut, endpoint, nil, body, "push")
	if err != nil {
		return connectors.PushReceipt{}, err
	}

	var product wooProduct
	if err := connectors.DecodeJSON(models.PlatformWooCommerce, "push", resp, &product); err != nil {
		return connectors.PushReceipt{}, err
	}

	receipt := connectors.PushReceipt{Reference: strconv.FormatInt(product.ID, 10), Price: update.Price, Stock: update.Stock}
	if product.StockQuantity != nil {
		receipt.Stock = *product.StockQuantity
	}
	return receipt, nil
}

type publishBody struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	SKU            string `json:"sku"`
	GlobalUniqueID string `json:"global_unique_id,omitempty"`
	RegularPrice   string `json:"regular_price"`
	ManageStock    bool   `json:"manage_stock"`
	StockQuantity  int    `json:"stock_quantity"`
}

// PublishListing создает в магазине новый простой товар
func (c *Connector) PublishListing(ctx context.Context, account *models.Account, product *models.Product) (models.RemoteListing, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return models.RemoteListing{}, err
	}

	body := publishBody{
		Name:           product.Name,
		Type:           "simple",
		Status:         "publish",
		SKU:            product.Code,
		GlobalUniqueID: product.Barcode,
		RegularPrice:   product.SalePrice.StringFixed(2),
		ManageStock:    true,
		StockQuantity:  product.Stock,
	}
	resp, err := c.do(ctx, creds, http.MethodPost, base+"/products", nil, body, "publish")
	if err != nil {
		return models.RemoteListing{}, err
	}

	var created wooProduct
	if err := connectors.DecodeJSON(models.PlatformWooCommerce, "publish", resp, &created); err != nil {
		return models.RemoteListing{}, err
	}
	if created.ID == 0 {
		return models.RemoteListing{}, connectors.NewError(connectors.ErrMalformedResponse, models.PlatformWooCommerce,
			"publish", resp.StatusCode, resp.Body, fmt.Errorf("product id is empty"))
	}
	return created.listing(), nil
}

func (c *Connector) prepare(account *models.Account) (*Credentials, string, error) {
	var creds Credentials
	if err := connectors.DecodeCredentials(account, &creds); err != nil {
		return nil, "", err
	}
	store := creds.StoreURL
	if account.BaseURL != "" {
		store = account.BaseURL
	}
	if store == "" {
		return nil, "", connectors.NewError(connectors.ErrInvalidCredentials, models.PlatformWooCommerce, "credentials", 0, nil,
			fmt.Errorf("store url is empty"))
	}
	return &creds, strings.TrimRight(store, "/") + apiPrefix, nil
}

// do добавляет ключи магазина в query, как требует WooCommerce при работе по HTTPS
func (c *Connector) do(ctx context.Context, creds *Credentials, method, endpoint string, q url.Values, body interface{}, op string) (*connectors.Response, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("consumer_key", creds.ConsumerKey)
	q.Set("consumer_secret", creds.ConsumerSecret)

	req, err := connectors.NewJSONRequest(ctx, method, endpoint+"?"+q.Encode(), body)
	if err != nil {
		return nil, err
	}
	return c.transport.Do(req, op)
}
