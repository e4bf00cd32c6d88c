package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount(storeURL string) *models.Account {
	return &models.Account{
		ID:          "acc-woo",
		TenantID:    "tenant-1",
		Platform:    models.PlatformWooCommerce,
		BaseURL:     storeURL,
		Credentials: json.RawMessage(`{"consumerKey":"ck_1","consumerSecret":"cs_1"}`),
		Active:      true,
	}
}

// filterByDate повторяет фильтр REST API WooCommerce: after и before строгие, с точностью до секунды.
// Записи без разбираемой даты отдаются как есть.
func filterByDate(t *testing.T, q url.Values, items []string) string {
	t.Helper()
	after, err := time.Parse(isoLayout, q.Get("after"))
	require.NoError(t, err)
	before, err := time.Parse(isoLayout, q.Get("before"))
	require.NoError(t, err)

	kept := make([]string, 0, len(items))
	for _, item := range items {
		var head struct {
			Date string `json:"date_created_gmt"`
		}
		_ = json.Unmarshal([]byte(item), &head)
		created, err := time.Parse("2006-01-02T15:04:05", head.Date)
		if err == nil && (!created.After(after) || !created.Before(before)) {
			continue
		}
		kept = append(kept, item)
	}
	return "[" + strings.Join(kept, ",") + "]"
}

func TestConnector_FetchOrders_PagesAndTrimsBoundaries(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(30 * 24 * time.Hour)

	var pages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/wp-json/wc/v3/orders", r.URL.Path)
		assert.Equal(t, "ck_1", q.Get("consumer_key"))
		assert.Equal(t, "cs_1", q.Get("consumer_secret"))
		assert.Equal(t, "2024-04-30T23:59:59Z", q.Get("after"))
		assert.Equal(t, "2024-05-31T00:00:00Z", q.Get("before"))

		page, _ := strconv.Atoi(q.Get("page"))
		pages = append(pages, page)

		w.Header().Set("X-WP-TotalPages", "2")
		switch page {
		case 1:
			// заказ в From-1с площадка сама отсекает строгим after, заказ в To строгим before
			_, _ = io.WriteString(w, filterByDate(t, q, []string{
				`{"id":10,"number":"10","status":"processing","currency":"TRY","total":"149.90","date_created_gmt":"2024-04-30T23:59:59",
				 "line_items":[{"product_id":5,"sku":"SKU-1","name":"Vazo","quantity":1,"price":149.9}]}`,
				`{"id":11,"number":"11","status":"completed","currency":"TRY","total":"20.00","date_created_gmt":"2024-05-01T00:00:00",
				 "billing":{"first_name":"Ali","last_name":"Kaya"},"line_items":[]}`,
				`{"id":13,"status":"completed","total":"1.00","date_created_gmt":"2024-05-31T00:00:00"}`,
			}))
		default:
			_, _ = io.WriteString(w, `[{"id":12,"status":"on-hold","total":"5.00","date_created_gmt":"not a date"}]`)
		}
	}))
	defer srv.Close()

	c := NewConnector(time.Second)
	orders, err := c.FetchOrders(context.Background(), testAccount(srv.URL+"/"), models.TimeRange{From: from, To: to})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, pages, "short page ends pagination")
	require.Len(t, orders, 1)

	o, ok := orders[0].(*raw.WooOrder)
	require.True(t, ok)
	assert.Equal(t, "11", o.NativeID())
	assert.Equal(t, from, o.OccurredAt())
	assert.Equal(t, "Kaya", o.Billing.LastName)
}

func TestConnector_FetchOrders_FullPagesFollowTotalPages(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("X-WP-TotalPages", "2")

		items := make([]string, 0, perPage)
		for i := 0; i < perPage; i++ {
			id := page*1000 + i
			items = append(items, fmt.Sprintf(`{"id":%d,"status":"completed","total":"1.00","date_created_gmt":"2024-05-01T01:00:00"}`, id))
		}
		if page == 2 {
			items = append(items[:3], `{"id":"broken"}`)
		}
		_, _ = io.WriteString(w, filterByDate(t, r.URL.Query(), items))
	}))
	defer srv.Close()

	c := NewConnector(time.Second)
	orders, err := c.FetchOrders(context.Background(), testAccount(srv.URL), models.TimeRange{From: from, To: from.Add(24 * time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	require.Len(t, orders, perPage+4)
	_, malformed := orders[len(orders)-1].(*raw.Malformed)
	assert.True(t, malformed)
}

func TestConnector_FetchOrders_SubSecondBoundaryOwnsOrderOnce(t *testing.T) {
	boundary := time.Date(2024, 5, 10, 12, 0, 0, 500_000_000, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-WP-TotalPages", "1")
		_, _ = io.WriteString(w, filterByDate(t, r.URL.Query(), []string{
			`{"id":20,"status":"completed","total":"1.00","date_created_gmt":"2024-05-10T12:00:00"}`,
		}))
	}))
	defer srv.Close()

	c := NewConnector(time.Second)
	total := 0
	for _, chunk := range []models.TimeRange{
		{From: boundary.Add(-time.Hour), To: boundary},
		{From: boundary, To: boundary.Add(time.Hour)},
	} {
		orders, err := c.FetchOrders(context.Background(), testAccount(srv.URL), chunk)
		require.NoError(t, err)
		total += len(orders)
	}
	assert.Equal(t, 1, total)
}

func TestConnector_MissingStoreURL(t *testing.T) {
	c := NewConnector(time.Second)
	_, err := c.FetchOrders(context.Background(), testAccount(""), models.TimeRange{From: time.Unix(0, 0), To: time.Unix(60, 0)})
	assert.ErrorIs(t, err, connectors.ErrInvalidCredentials)
}

func TestConnector_FetchOrders_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"woocommerce_rest_cannot_view"}`)
	}))
	defer srv.Close()

	c := NewConnector(time.Second)
	_, err := c.FetchOrders(context.Background(), testAccount(srv.URL), models.TimeRange{From: time.Unix(0, 0), To: time.Unix(60, 0)})
	assert.ErrorIs(t, err, connectors.ErrAuthRejected)
	assert.Equal(t, "auth", connectors.KindOf(err))
}

func TestConnector_PushPriceStock_Variation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/wp-json/wc/v3/products/5/variations/9", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "149.90", body["regular_price"])
		assert.Equal(t, float64(4), body["stock_quantity"])
		assert.Equal(t, true, body["manage_stock"])

		_, _ = io.WriteString(w, `{"id":9,"parent_id":5,"price":"149.90","stock_quantity":4}`)
	}))
	defer srv.Close()

	c := NewConnector(time.Second)
	receipt, err := c.PushPriceStock(context.Background(), testAccount(srv.URL), connectors.PriceStockUpdate{
		ListingID: "5",
		VariantID: "9",
		Price:     decimal.RequireFromString("149.9"),
		Stock:     4,
	})
	require.NoError(t, err)
	assert.Equal(t, "9", receipt.Reference)
	assert.Equal(t, 4, receipt.Stock)
}

func TestConnector_FetchCatalog_FiltersByBarcode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
		w.Header().Set("X-WP-TotalPages", "1")
		_, _ = io.WriteString(w, `[
			{"id":1,"sku":"A","global_unique_id":"111","name":"Bir","price":"10.00","stock_quantity":2},
			{"id":2,"sku":"B","global_unique_id":"222","name":"İki","price":"","stock_quantity":null}
		]`)
	}))
	defer srv.Close()

	c := NewConnector(time.Second)
	listings, err := c.FetchCatalog(context.Background(), testAccount(srv.URL), connectors.CatalogQuery{Barcode: "222"})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "2", listings[0].ListingID)
	assert.True(t, listings[0].Price.IsZero())
	assert.Equal(t, 0, listings[0].Stock)
}

func TestConnector_PublishListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body publishBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SKU-1", body.SKU)
		assert.Equal(t, "25.50", body.RegularPrice)
		assert.Equal(t, "simple", body.Type)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":77,"sku":"SKU-1","name":"Vazo","price":"25.50","stock_quantity":3}`)
	}))
	defer srv.Close()

	var pub connectors.Publisher = NewConnector(time.Second)
	listing, err := pub.PublishListing(context.Background(), testAccount(srv.URL), &models.Product{
		Code:      "SKU-1",
		Name:      "Vazo",
		SalePrice: decimal.RequireFromString("25.5"),
		Stock:     3,
	})
	require.NoError(t, err)
	assert.Equal(t, "77", listing.ListingID)
	assert.Equal(t, 3, listing.Stock)
}
