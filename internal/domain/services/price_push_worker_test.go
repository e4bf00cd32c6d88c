package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushFixture struct {
	worker    *PricePushWorker
	queue     *fakeQueue
	links     *fakeLinks
	accounts  *fakeAccounts
	connector *fakeConnector
	events    *fakeEvents
}

func newPushFixture(linkCount int) *pushFixture {
	f := &pushFixture{
		queue:     newFakeQueue(),
		links:     newFakeLinks(),
		connector: &fakeConnector{platform: models.PlatformTrendyol},
		events:    &fakeEvents{},
		accounts: newFakeAccounts(
			&models.Account{ID: "acc-1", TenantID: testTenant, Platform: models.PlatformTrendyol, Active: true},
		),
	}
	for i := 1; i <= linkCount; i++ {
		id := fmt.Sprintf("link-%d", i)
		f.links.links[id] = &models.ProductLink{
			ID:              id,
			TenantID:        testTenant,
			ProductID:       fmt.Sprintf("p-%d", i),
			AccountID:       "acc-1",
			RemoteListingID: fmt.Sprintf("L%d", i),
			Status:          models.LinkStatusActive,
		}
	}
	f.worker = NewPricePushWorker(f.queue, f.links, f.accounts, connectors.NewRegistry(f.connector), fakeTx{},
		f.events, nil, logger.NewNopLogger(), PricePushConfig{CallTimeout: time.Second})
	return f
}

func (f *pushFixture) enqueue(t *testing.T, id, linkID, price string, stock int) {
	t.Helper()
	_, err := f.queue.Enqueue(context.Background(), &models.SyncQueueItem{
		ID:            id,
		TenantID:      testTenant,
		ProductLinkID: linkID,
		TargetPrice:   decimal.RequireFromString(price),
		TargetStock:   stock,
	})
	require.NoError(t, err)
}

func TestPricePush_FailedItemDoesNotStopBatch(t *testing.T) {
	f := newPushFixture(5)
	for i := 1; i <= 5; i++ {
		f.enqueue(t, fmt.Sprintf("item-%d", i), fmt.Sprintf("link-%d", i), "10", i)
	}
	f.connector.push = func(_ context.Context, u connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
		if u.ListingID == "L2" {
			return connectors.PushReceipt{}, connectors.NewError(connectors.ErrRejected, models.PlatformTrendyol, "push", 400, nil, errors.New("invalid barcode"))
		}
		return connectors.PushReceipt{Reference: "b", Price: u.Price, Stock: u.Stock}, nil
	}

	res, err := f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)

	assert.Equal(t, 5, f.connector.pushCount())
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 1, res.Failed)

	for i := 1; i <= 5; i++ {
		item := f.queue.get(fmt.Sprintf("item-%d", i))
		if i == 2 {
			assert.Equal(t, models.QueueStatusPending, item.Status)
			assert.Contains(t, item.LastError, "invalid barcode")
			continue
		}
		assert.Equal(t, models.QueueStatusDone, item.Status, "item-%d", i)
	}

	require.Len(t, f.events.events, 1)
	assert.Equal(t, EventPricePushCompleted, f.events.events[0].eventType)
}

func TestPricePush_TimeoutStaysPendingAndRetries(t *testing.T) {
	f := newPushFixture(1)
	f.enqueue(t, "item-1", "link-1", "149.90", 3)

	f.connector.push = func(context.Context, connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
		return connectors.PushReceipt{}, connectors.NewError(connectors.ErrTransportTimeout, models.PlatformTrendyol, "push", 0, nil, context.DeadlineExceeded)
	}

	res, err := f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	item := f.queue.get("item-1")
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.NotEmpty(t, item.LastError)
	require.NotNil(t, item.LastAttemptAt)

	// площадка снова доступна
	f.connector.push = nil

	res, err = f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Failed)

	item = f.queue.get("item-1")
	assert.Equal(t, models.QueueStatusDone, item.Status)
	assert.Equal(t, 2, item.Attempts)
	require.Equal(t, 2, f.connector.pushCount())
	assert.True(t, decimal.RequireFromString("149.90").Equal(f.connector.pushes[1].Price))

	link := f.links.get("link-1")
	assert.True(t, decimal.RequireFromString("149.90").Equal(link.RemotePrice))
	assert.Equal(t, 3, link.RemoteStock)
}

func TestPricePush_FailingItemsDoNotStarveQueue(t *testing.T) {
	f := newPushFixture(6)
	for i := 1; i <= 6; i++ {
		f.enqueue(t, fmt.Sprintf("item-%d", i), fmt.Sprintf("link-%d", i), "10", i)
	}
	// первые пять связей ведут на недоступную площадку
	f.connector.push = func(_ context.Context, u connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
		if u.ListingID != "L6" {
			return connectors.PushReceipt{}, connectors.NewError(connectors.ErrTransportTimeout, models.PlatformTrendyol, "push", 0, nil, context.DeadlineExceeded)
		}
		return connectors.PushReceipt{Reference: "ok", Price: u.Price, Stock: u.Stock}, nil
	}

	for pass := 0; pass < 2; pass++ {
		_, err := f.worker.RunPass(context.Background(), testTenant)
		require.NoError(t, err)
	}

	healthy := f.queue.get("item-6")
	assert.Equal(t, models.QueueStatusDone, healthy.Status)
	assert.Equal(t, 1, healthy.Attempts)
	for i := 1; i <= 5; i++ {
		assert.Equal(t, models.QueueStatusPending, f.queue.get(fmt.Sprintf("item-%d", i)).Status)
	}
}

func TestPricePush_BatchSizeLimit(t *testing.T) {
	f := newPushFixture(7)
	for i := 1; i <= 7; i++ {
		f.enqueue(t, fmt.Sprintf("item-%d", i), fmt.Sprintf("link-%d", i), "1", 1)
	}

	res, err := f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, DefaultPushBatchSize, res.Processed)

	res, err = f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	res, err = f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Len(t, f.events.events, 2)
}

func TestPricePush_CancelReleasesRemaining(t *testing.T) {
	f := newPushFixture(5)
	for i := 1; i <= 5; i++ {
		f.enqueue(t, fmt.Sprintf("item-%d", i), fmt.Sprintf("link-%d", i), "10", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.connector.push = func(_ context.Context, u connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
		cancel()
		return connectors.PushReceipt{Price: u.Price, Stock: u.Stock}, nil
	}

	res, err := f.worker.RunPass(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 4, res.Released)
	assert.Equal(t, 1, f.connector.pushCount())

	assert.Equal(t, models.QueueStatusDone, f.queue.get("item-1").Status)
	for i := 2; i <= 5; i++ {
		assert.Equal(t, models.QueueStatusPending, f.queue.get(fmt.Sprintf("item-%d", i)).Status)
	}
}

func TestPricePush_ConcurrentPassesNeverDoublePush(t *testing.T) {
	f := newPushFixture(10)
	for i := 1; i <= 10; i++ {
		f.enqueue(t, fmt.Sprintf("item-%d", i), fmt.Sprintf("link-%d", i), "5", 1)
	}
	f.connector.push = func(_ context.Context, u connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
		time.Sleep(5 * time.Millisecond)
		return connectors.PushReceipt{Price: u.Price, Stock: u.Stock}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.worker.RunPass(context.Background(), testTenant)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, p := range f.connector.pushes {
		seen[p.ListingID]++
	}
	assert.Len(t, seen, 10)
	for listing, n := range seen {
		assert.Equal(t, 1, n, listing)
	}
}

func TestPricePush_FailureSupersededByNewerChange(t *testing.T) {
	f := newPushFixture(1)
	f.enqueue(t, "item-old", "link-1", "100", 1)

	f.connector.push = func(_ context.Context, u connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
		if u.Price.Equal(decimal.NewFromInt(100)) {
			// пока старое изменение отправляется, пользователь меняет цену еще раз
			f.enqueue(t, "item-new", "link-1", "120", 2)
			return connectors.PushReceipt{}, connectors.NewError(connectors.ErrUnavailable, models.PlatformTrendyol, "push", 503, nil, errors.New("down"))
		}
		return connectors.PushReceipt{Price: u.Price, Stock: u.Stock}, nil
	}

	_, err := f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSuperseded, f.queue.get("item-old").Status)

	res, err := f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, models.QueueStatusDone, f.queue.get("item-new").Status)
	assert.True(t, decimal.NewFromInt(120).Equal(f.links.get("link-1").RemotePrice))
}

func TestPricePush_StaleProcessingIsReclaimed(t *testing.T) {
	f := newPushFixture(1)
	f.enqueue(t, "item-1", "link-1", "10", 1)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.queue.now = func() time.Time { return now }

	// воркер забрал элемент и упал, не завершив его
	claimed, err := f.queue.Claim(context.Background(), testTenant, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	res, err := f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)

	now = now.Add(DefaultPushLease + time.Minute)
	res, err = f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, models.QueueStatusDone, f.queue.get("item-1").Status)
}

func TestPricePush_InactiveAccountFailsItem(t *testing.T) {
	f := newPushFixture(2)
	f.accounts.accounts["acc-2"] = &models.Account{ID: "acc-2", TenantID: testTenant, Platform: models.PlatformTrendyol, Active: false}
	f.links.links["link-2"].AccountID = "acc-2"
	f.enqueue(t, "item-1", "link-1", "10", 1)
	f.enqueue(t, "item-2", "link-2", "10", 1)

	res, err := f.worker.RunPass(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, f.connector.pushCount())

	item := f.queue.get("item-2")
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.Contains(t, item.LastError, "inactive")
}
