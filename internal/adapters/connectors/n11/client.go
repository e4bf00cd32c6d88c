// Package n11 коннектор SOAP API площадки n11.
//
// Период выборки заказов задается датами без времени (DD/MM/YYYY) по времени Турции,
// обе даты включительно. Поэтому подынтервалы выравниваются на полночь TRT,
// а точная принадлежность заказа полуинтервалу проверяется по createDate.
package n11

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL адрес SOAP-сервисов n11
	DefaultBaseURL = "https://api.n11.com/ws"

	dateLayout  = "02/01/2006"
	pageSize    = 100
	maxPages    = 500
	chunkWidth  = 7 * 24 * time.Hour
	concurrency = 2

	// currencyTRY код валюты TL в n11
	currencyTRY = 1
)

// Credentials ключи приложения n11
type Credentials struct {
	AppKey    string `json:"appKey" validate:"required"`
	AppSecret string `json:"appSecret" validate:"required"`
}

func (c Credentials) auth() authData {
	return authData{AppKey: c.AppKey, AppSecret: c.AppSecret}
}

// Connector коннектор n11
type Connector struct {
	baseURL   string
	transport *connectors.Transport
}

// NewConnector создает коннектор; пустой baseURL означает DefaultBaseURL
func NewConnector(baseURL string, timeout time.Duration) *Connector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Connector{
		baseURL:   baseURL,
		transport: connectors.NewTransport(models.PlatformN11, timeout),
	}
}

func (c *Connector) Platform() models.Platform { return models.PlatformN11 }

func (c *Connector) Limits() connectors.Limits {
	return connectors.Limits{
		MaxWindow:   connectors.DefaultMaxWindow,
		ChunkWidth:  chunkWidth,
		PageSize:    pageSize,
		Concurrency: concurrency,
		Location:    raw.N11Location,
	}
}

type orderListRequest struct {
	XMLName    xml.Name   `xml:"sch:DetailedOrderListRequest"`
	Auth       authData   `xml:"auth"`
	StartDate  string     `xml:"searchData>period>startDate"`
	EndDate    string     `xml:"searchData>period>endDate"`
	PagingData pagingData `xml:"pagingData"`
}

// orderElement сохраняет исходный XML заказа, чтобы разобрать его отдельно
type orderElement struct {
	Inner []byte `xml:",innerxml"`
}

type orderListResponse struct {
	Result     serviceResult  `xml:"result"`
	PagingData pagingData     `xml:"pagingData"`
	Orders     []orderElement `xml:"orderList>order"`
}

// FetchOrders выбирает заказы за [r.From, r.To)
func (c *Connector) FetchOrders(ctx context.Context, account *models.Account, r models.TimeRange) ([]raw.Order, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return nil, err
	}

	req := orderListRequest{
		Auth:      creds.auth(),
		StartDate: r.From.In(raw.N11Location).Format(dateLayout),
		EndDate:   r.To.Add(-time.Nanosecond).In(raw.N11Location).Format(dateLayout),
	}

	var orders []raw.Order
	for page := 0; page < maxPages; page++ {
		req.PagingData = pagingData{CurrentPage: page, PageSize: pageSize}

		var resp orderListResponse
		if err := c.call(ctx, base, "OrderService", "DetailedOrderList", req, &resp); err != nil {
			return nil, err
		}
		if err := resp.Result.err("DetailedOrderList", nil); err != nil {
			return nil, err
		}

		for _, el := range resp.Orders {
			payload := make([]byte, 0, len(el.Inner)+len("<order></order>"))
			payload = append(payload, "<order>"...)
			payload = append(payload, el.Inner...)
			payload = append(payload, "</order>"...)

			o := raw.DecodeN11(payload)
			if _, ok := o.(*raw.Malformed); !ok && !r.Contains(o.OccurredAt()) {
				continue
			}
			orders = append(orders, o)
		}

		if len(resp.Orders) < pageSize || page+1 >= resp.PagingData.PageCount {
			break
		}
	}

	return orders, nil
}

type stockItem struct {
	ID       string `xml:"id"`
	Barcode  string `xml:"gtin"`
	Quantity int    `xml:"quantity"`
}

type productElement struct {
	ID                string      `xml:"id"`
	ProductSellerCode string      `xml:"productSellerCode"`
	Title             string      `xml:"title"`
	DisplayPrice      string      `xml:"displayPrice"`
	StockItems        []stockItem `xml:"stockItems>stockItem"`
}

func (p productElement) listings() []models.RemoteListing {
	base := models.RemoteListing{
		ListingID: p.ID,
		Code:      p.ProductSellerCode,
		Title:     p.Title,
	}
	if price, err := decimal.NewFromString(strings.TrimSpace(p.DisplayPrice)); err == nil {
		base.Price = price
	}
	if len(p.StockItems) == 0 {
		return []models.RemoteListing{base}
	}

	out := make([]models.RemoteListing, 0, len(p.StockItems))
	for _, si := range p.StockItems {
		l := base
		l.VariantID = si.ID
		l.Barcode = si.Barcode
		l.Stock = si.Quantity
		out = append(out, l)
	}
	return out
}

type productListRequest struct {
	XMLName    xml.Name   `xml:"sch:GetProductListRequest"`
	Auth       authData   `xml:"auth"`
	PagingData pagingData `xml:"pagingData"`
}

type productListResponse struct {
	Result     serviceResult    `xml:"result"`
	PagingData pagingData       `xml:"pagingData"`
	Products   []productElement `xml:"products>product"`
}

type productBySellerCodeRequest struct {
	XMLName    xml.Name `xml:"sch:GetProductBySellerCodeRequest"`
	Auth       authData `xml:"auth"`
	SellerCode string   `xml:"sellerCode"`
}

type productBySellerCodeResponse struct {
	Result  serviceResult  `xml:"result"`
	Product productElement `xml:"product"`
}

// FetchCatalog по коду товара делает точечный запрос, иначе листает весь каталог
func (c *Connector) FetchCatalog(ctx context.Context, account *models.Account, query connectors.CatalogQuery) ([]models.RemoteListing, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return nil, err
	}

	if query.Code != "" {
		var resp productBySellerCodeResponse
		req := productBySellerCodeRequest{Auth: creds.auth(), SellerCode: query.Code}
		if err := c.call(ctx, base, "ProductService", "GetProductBySellerCode", req, &resp); err != nil {
			return nil, err
		}
		if err := resp.Result.err("GetProductBySellerCode", nil); err != nil {
			return nil, err
		}
		if resp.Product.ID == "" {
			return nil, nil
		}
		return filterListings(resp.Product.listings(), query), nil
	}

	limit := query.MaxItems
	if limit <= 0 {
		limit = 1000
	}

	var listings []models.RemoteListing
	for page := 0; page < maxPages && len(listings) < limit; page++ {
		var resp productListResponse
		req := productListRequest{Auth: creds.auth(), PagingData: pagingData{CurrentPage: page, PageSize: pageSize}}
		if err := c.call(ctx, base, "ProductService", "GetProductList", req, &resp); err != nil {
			return nil, err
		}
		if err := resp.Result.err("GetProductList", nil); err != nil {
			return nil, err
		}

		for _, p := range resp.Products {
			listings = append(listings, filterListings(p.listings(), query)...)
		}
		if len(resp.Products) < pageSize || page+1 >= resp.PagingData.PageCount {
			break
		}
	}

	if len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

func filterListings(in []models.RemoteListing, query connectors.CatalogQuery) []models.RemoteListing {
	out := in[:0]
	search := strings.ToLower(query.Search)
	for _, l := range in {
		if query.Barcode != "" && l.Barcode != query.Barcode {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(l.Title), search) {
			continue
		}
		out = append(out, l)
	}
	return out
}

type updatePriceRequest struct {
	XMLName      xml.Name `xml:"sch:UpdateProductPriceByIdRequest"`
	Auth         authData `xml:"auth"`
	ProductID    string   `xml:"productId"`
	Price        string   `xml:"price"`
	CurrencyType int      `xml:"currencyType"`
}

type updateStockRequest struct {
	XMLName  xml.Name `xml:"sch:UpdateStockByStockIdRequest"`
	Auth     authData `xml:"auth"`
	StockID  string   `xml:"stockItems>stockItem>id"`
	Quantity int      `xml:"stockItems>stockItem>quantity"`
}

type resultOnly struct {
	Result serviceResult `xml:"result"`
}

// PushPriceStock у n11 цена и остаток обновляются разными операциями:
// сначала цена товара, затем остаток складской позиции (VariantID).
func (c *Connector) PushPriceStock(ctx context.Context, account *models.Account, update connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
	creds, base, err := c.prepare(account)
	if err != nil {
		return connectors.PushReceipt{}, err
	}
	if update.VariantID == "" {
		return connectors.PushReceipt{}, connectors.NewError(connectors.ErrRejected, models.PlatformN11, "push", 0, nil,
			fmt.Errorf("stock item id is required for listing %s", update.ListingID))
	}

	var priceResp resultOnly
	priceReq := updatePriceRequest{
		Auth:         creds.auth(),
		ProductID:    update.ListingID,
		Price:        update.Price.StringFixed(2),
		CurrencyType: currencyTRY,
	}
	if err := c.call(ctx, base, "ProductService", "UpdateProductPriceById", priceReq, &priceResp); err != nil {
		return connectors.PushReceipt{}, err
	}
	if err := priceResp.Result.err("UpdateProductPriceById", nil); err != nil {
		return connectors.PushReceipt{}, err
	}

	var stockResp resultOnly
	stockReq := updateStockRequest{Auth: creds.auth(), StockID: update.VariantID, Quantity: update.Stock}
	if err := c.call(ctx, base, "ProductStockService", "UpdateStockByStockId", stockReq, &stockResp); err != nil {
		return connectors.PushReceipt{}, err
	}
	if err := stockResp.Result.err("UpdateStockByStockId", nil); err != nil {
		return connectors.PushReceipt{}, err
	}

	return connectors.PushReceipt{Reference: update.ListingID, Price: update.Price, Stock: update.Stock}, nil
}

func (c *Connector) prepare(account *models.Account) (*Credentials, string, error) {
	var creds Credentials
	if err := connectors.DecodeCredentials(account, &creds); err != nil {
		return nil, "", err
	}
	base := c.baseURL
	if account.BaseURL != "" {
		base = account.BaseURL
	}
	return &creds, base, nil
}
