package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

type ingestionFixture struct {
	svc       *IngestionService
	accounts  *fakeAccounts
	orders    *fakeOrders
	connector *fakeConnector
	cache     *fakeCache
	events    *fakeEvents
	now       time.Time
}

func newIngestionFixture(t *testing.T, accounts ...*models.Account) *ingestionFixture {
	t.Helper()
	if len(accounts) == 0 {
		accounts = []*models.Account{{ID: "acc-1", TenantID: testTenant, Platform: models.PlatformTrendyol, Active: true}}
	}

	f := &ingestionFixture{
		accounts: newFakeAccounts(accounts...),
		orders:   newFakeOrders(),
		connector: &fakeConnector{
			platform: models.PlatformTrendyol,
			limits:   connectors.Limits{MaxWindow: connectors.DefaultMaxWindow, ChunkWidth: 14 * 24 * time.Hour, Concurrency: 3},
		},
		cache:  newFakeCache(),
		events: &fakeEvents{},
		now:    time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC),
	}

	f.svc = NewIngestionService(IngestionDeps{
		Accounts: f.accounts,
		Orders:   f.orders,
		Registry: connectors.NewRegistry(f.connector),
		Chunker:  NewRangeChunker(time.Second),
		Billing:  fakeBilling{allow: true},
		Cache:    f.cache,
		Events:   f.events,
		Logger:   logger.NewNopLogger(),
	}, IngestionConfig{DefaultLookback: 30 * 24 * time.Hour, AccountConcurrency: 2})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func shippedPayload(orderNumber string, at time.Time) json.RawMessage {
	return json.RawMessage(`{"id":1,"orderNumber":"` + orderNumber + `","status":"Shipped","customerFirstName":"Ayşe","customerLastName":"Yılmaz",
		"totalPrice":149.90,"currencyCode":"TRY","orderDate":` + jsonInt(at.UnixMilli()) + `,
		"lines":[{"merchantSku":"SKU-1","productName":"Vazo","quantity":1,"price":149.90}]}`)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestIngestion_ShippedOrderIsIdempotent(t *testing.T) {
	f := newIngestionFixture(t)
	at := f.now.Add(-48 * time.Hour)
	f.connector.fetch = func(ctx context.Context, r models.TimeRange) ([]raw.Order, error) {
		if !r.Contains(at) {
			return nil, nil
		}
		return []raw.Order{raw.DecodeTrendyol(shippedPayload("TY-100", at))}, nil
	}

	window := models.TimeRange{From: f.now.AddDate(0, 0, -7), To: f.now}

	first, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1", window)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 1, first.OrdersProcessed)
	assert.Equal(t, 1, f.orders.count(testTenant))

	stored, err := f.orders.GetOrder(context.Background(), testTenant, models.PlatformTrendyol, "TY-100")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, stored.Status)
	assert.Equal(t, "149.9", stored.TotalAmount.String())

	second, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1", window)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 1, f.orders.count(testTenant), "re-ingestion must not duplicate")

	again, err := f.orders.GetOrder(context.Background(), testTenant, models.PlatformTrendyol, "TY-100")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.ID)
	assert.Equal(t, stored.Status, again.Status)
	assert.True(t, stored.TotalAmount.Equal(again.TotalAmount))
	assert.Equal(t, stored.Items, again.Items)
	assert.Equal(t, stored.RawPayload, again.RawPayload)

	assert.Len(t, f.events.events, 2)
	assert.Equal(t, EventOrdersSynced, f.events.events[0].eventType)
}

func TestIngestion_SameNativeIDInAnotherTenantDoesNotCollide(t *testing.T) {
	f := newIngestionFixture(t,
		&models.Account{ID: "acc-1", TenantID: "tenant-1", Platform: models.PlatformTrendyol, Active: true},
		&models.Account{ID: "acc-2", TenantID: "tenant-2", Platform: models.PlatformTrendyol, Active: true},
	)
	at := f.now.Add(-time.Hour)
	f.connector.fetch = func(ctx context.Context, r models.TimeRange) ([]raw.Order, error) {
		if !r.Contains(at) {
			return nil, nil
		}
		return []raw.Order{raw.DecodeTrendyol(shippedPayload("TY-1", at))}, nil
	}

	_, err := f.svc.SyncAccount(context.Background(), "tenant-1", "acc-1", models.TimeRange{})
	require.NoError(t, err)
	_, err = f.svc.SyncAccount(context.Background(), "tenant-2", "acc-2", models.TimeRange{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.orders.count("tenant-1"))
	assert.Equal(t, 1, f.orders.count("tenant-2"))
}

func TestIngestion_PerOrderFailuresDoNotAbortBatch(t *testing.T) {
	f := newIngestionFixture(t)
	at := f.now.Add(-time.Hour)
	f.orders.failOn["TY-2"] = errors.New("connection reset")
	f.connector.fetch = func(ctx context.Context, r models.TimeRange) ([]raw.Order, error) {
		if !r.Contains(at) {
			return nil, nil
		}
		return []raw.Order{
			raw.DecodeTrendyol(shippedPayload("TY-1", at)),
			raw.DecodeTrendyol(shippedPayload("TY-2", at)),
			raw.DecodeTrendyol(json.RawMessage(`{"orderNumber":17}`)),
			raw.DecodeTrendyol(shippedPayload("TY-3", at)),
		}, nil
	}

	result, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1", models.TimeRange{From: f.now.AddDate(0, 0, -1), To: f.now})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.OrdersProcessed)
	assert.Equal(t, 2, result.OrdersFailed)
	assert.Empty(t, result.Error, "account is not aborted")

	kinds := map[string]int{}
	for _, fl := range result.Failures {
		assert.Equal(t, models.FailureUnitOrder, fl.Unit)
		kinds[fl.Kind]++
	}
	assert.Equal(t, map[string]int{FailureKindMalformed: 1, FailureKindPersistence: 1}, kinds)
}

func TestIngestion_PartialChunkFailure(t *testing.T) {
	f := newIngestionFixture(t)
	window := models.TimeRange{From: f.now.AddDate(0, 0, -28), To: f.now}
	f.connector.fetch = func(ctx context.Context, r models.TimeRange) ([]raw.Order, error) {
		if r.From.Equal(window.From) {
			return nil, connectors.NewError(connectors.ErrTransportTimeout, models.PlatformTrendyol, "orders", 0, nil, context.DeadlineExceeded)
		}
		return []raw.Order{raw.DecodeTrendyol(shippedPayload("TY-"+r.From.Format("0102"), r.From))}, nil
	}

	result, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1", window)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ChunksTotal)
	assert.Equal(t, 1, result.ChunksFailed)
	assert.Equal(t, 1, result.OrdersProcessed)
	assert.False(t, result.Success)
	assert.Empty(t, result.Error)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, models.FailureUnitChunk, result.Failures[0].Unit)
	assert.Equal(t, "timeout", result.Failures[0].Kind)
}

func TestIngestion_AllChunksFailedAbortsAccount(t *testing.T) {
	f := newIngestionFixture(t)
	f.connector.fetch = func(ctx context.Context, r models.TimeRange) ([]raw.Order, error) {
		return nil, connectors.NewError(connectors.ErrAccessBlocked, models.PlatformTrendyol, "orders", 403, []byte("<html>"), nil)
	}

	result, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1", models.TimeRange{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "access_blocked", result.ErrorKind)
	assert.Contains(t, result.Error, utils.ErrAllChunksFailed.Error())
	assert.Equal(t, result.ChunksTotal, result.ChunksFailed)
}

func TestIngestion_WindowClampedToPlatformLimit(t *testing.T) {
	f := newIngestionFixture(t)

	result, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1",
		models.TimeRange{From: f.now.AddDate(-1, 0, 0), To: f.now})
	require.NoError(t, err)

	assert.Equal(t, f.now.Add(-connectors.DefaultMaxWindow), result.Window.From)
	for _, r := range f.connector.ranges {
		assert.False(t, r.From.Before(result.Window.From))
	}
}

func TestIngestion_DayAlignedClampKeepsCalendarLimit(t *testing.T) {
	f := newIngestionFixture(t)
	loc := time.FixedZone("TRT", 3*60*60)
	f.connector.limits.Location = loc
	f.connector.limits.ChunkWidth = 30 * 24 * time.Hour

	result, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1",
		models.TimeRange{From: f.now.AddDate(-1, 0, 0), To: f.now})
	require.NoError(t, err)

	// 30.06 15:00 TRT минус 180 суток дает 02.01 15:00, первый целый день - 03.01
	from := result.Window.From.In(loc)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, loc), from)

	firstDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	last := f.now.In(loc)
	lastDay := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 180, int(lastDay.Sub(firstDay).Hours()/24)+1, "calendar days requested")
}

func TestIngestion_Preconditions(t *testing.T) {
	t.Run("inactive account", func(t *testing.T) {
		f := newIngestionFixture(t, &models.Account{ID: "acc-1", TenantID: testTenant, Platform: models.PlatformTrendyol})
		_, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1", models.TimeRange{})
		assert.ErrorIs(t, err, utils.ErrAccountInactive)
	})

	t.Run("foreign tenant", func(t *testing.T) {
		f := newIngestionFixture(t)
		_, err := f.svc.SyncAccount(context.Background(), "tenant-other", "acc-1", models.TimeRange{})
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("billing denied", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.svc.Billing = fakeBilling{allow: false}
		_, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1", models.TimeRange{})
		assert.ErrorIs(t, err, utils.ErrSyncNotAllowed)
	})

	t.Run("already running", func(t *testing.T) {
		f := newIngestionFixture(t)
		ok, err := f.cache.LockWithTenant(context.Background(), "sync:account:acc-1", testTenant, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = f.svc.SyncAccount(context.Background(), testTenant, "acc-1", models.TimeRange{})
		assert.ErrorIs(t, err, utils.ErrSyncInProgress)
		assert.Empty(t, f.connector.ranges)
	})

	t.Run("lock released after sync", func(t *testing.T) {
		f := newIngestionFixture(t)
		_, err := f.svc.SyncAccount(context.Background(), testTenant, "acc-1", models.TimeRange{})
		require.NoError(t, err)
		assert.Empty(t, f.cache.locks)
	})
}

func TestIngestion_SyncPlatform_AccountsAreIndependent(t *testing.T) {
	f := newIngestionFixture(t,
		&models.Account{ID: "acc-ok", TenantID: testTenant, Platform: models.PlatformTrendyol, Active: true},
		&models.Account{ID: "acc-down", TenantID: testTenant, Platform: models.PlatformTrendyol, Active: true},
		&models.Account{ID: "acc-off", TenantID: testTenant, Platform: models.PlatformTrendyol},
	)
	at := f.now.Add(-time.Hour)
	// коннектор один на площадку, поэтому различаем аккаунты через обертку
	f.svc.Registry = connectors.NewRegistry(&accountSwitchConnector{
		fakeConnector: f.connector,
		byAccount: map[string]func() ([]raw.Order, error){
			"acc-ok": func() ([]raw.Order, error) {
				return []raw.Order{raw.DecodeTrendyol(shippedPayload("TY-OK", at))}, nil
			},
			"acc-down": func() ([]raw.Order, error) {
				return nil, connectors.NewError(connectors.ErrUnavailable, models.PlatformTrendyol, "orders", 503, nil, nil)
			},
		},
	})

	summary, err := f.svc.SyncPlatform(context.Background(), testTenant, models.PlatformTrendyol, "", models.TimeRange{From: f.now.AddDate(0, 0, -1), To: f.now})
	require.NoError(t, err)

	require.Len(t, summary.Accounts, 2, "inactive account is not listed")
	assert.False(t, summary.Success)
	assert.Equal(t, 1, summary.OrdersProcessed)
	assert.Equal(t, 1, summary.AccountsFailed)

	byID := map[string]*models.SyncResult{}
	for _, r := range summary.Accounts {
		byID[r.AccountID] = r
	}
	assert.True(t, byID["acc-ok"].Success)
	assert.Equal(t, "unavailable", byID["acc-down"].ErrorKind)
}

func TestIngestion_SyncPlatform_SingleAccount(t *testing.T) {
	f := newIngestionFixture(t)

	_, err := f.svc.SyncPlatform(context.Background(), testTenant, models.PlatformN11, "acc-1", models.TimeRange{})
	assert.ErrorIs(t, err, utils.ErrNotFound, "platform mismatch")

	summary, err := f.svc.SyncPlatform(context.Background(), testTenant, models.PlatformTrendyol, "acc-1", models.TimeRange{})
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 1)
	assert.True(t, summary.Success)
}

func TestIngestion_SyncAllActive(t *testing.T) {
	f := newIngestionFixture(t,
		&models.Account{ID: "a", TenantID: "t1", Platform: models.PlatformTrendyol, Active: true},
		&models.Account{ID: "b", TenantID: "t2", Platform: models.PlatformTrendyol, Active: true},
		&models.Account{ID: "c", TenantID: "t2", Platform: models.PlatformN11, Active: true},
	)

	summary, err := f.svc.SyncAllActive(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 3)

	failed := 0
	for _, r := range summary.Accounts {
		if r.AccountID == "c" {
			assert.Equal(t, "unknown", r.ErrorKind, "no connector registered for n11")
			failed++
			continue
		}
		assert.True(t, r.Success)
	}
	assert.Equal(t, 1, failed)
}

type accountSwitchConnector struct {
	*fakeConnector
	byAccount map[string]func() ([]raw.Order, error)
}

func (c *accountSwitchConnector) FetchOrders(_ context.Context, account *models.Account, r models.TimeRange) ([]raw.Order, error) {
	if fn, ok := c.byAccount[account.ID]; ok {
		return fn()
	}
	return c.fakeConnector.FetchOrders(context.Background(), account, r)
}
