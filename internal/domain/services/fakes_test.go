package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	pkgutils "github.com/athebyme/gomarket-platform/marketplace-service/pkg/utils"
	"github.com/shopspring/decimal"
)

// ---------------- accounts ----------------

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func newFakeAccounts(list ...*models.Account) *fakeAccounts {
	f := &fakeAccounts{accounts: make(map[string]*models.Account)}
	for _, a := range list {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) GetAccount(_ context.Context, tenantID, accountID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok || (tenantID != "" && a.TenantID != tenantID) {
		return nil, utils.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) ListAccounts(_ context.Context, tenantID string, platform models.Platform, activeOnly bool) ([]*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Account
	for _, a := range f.accounts {
		if tenantID != "" && a.TenantID != tenantID {
			continue
		}
		if platform != "" && a.Platform != platform {
			continue
		}
		if activeOnly && !a.Active {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

// ---------------- orders ----------------

type fakeOrders struct {
	mu     sync.Mutex
	orders map[models.OrderKey]*models.CanonicalOrder
	failOn map[string]error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[models.OrderKey]*models.CanonicalOrder), failOn: make(map[string]error)}
}

func (f *fakeOrders) UpsertOrder(_ context.Context, order *models.CanonicalOrder) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[order.NativeOrderID]; ok {
		return false, fmt.Errorf("%w: %v", utils.ErrPersistence, err)
	}
	cp := *order
	if existing, ok := f.orders[order.Key()]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
		f.orders[order.Key()] = &cp
		return false, nil
	}
	f.orders[order.Key()] = &cp
	return true, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, tenantID string, platform models.Platform, nativeOrderID string) (*models.CanonicalOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[models.OrderKey{TenantID: tenantID, Platform: platform, NativeOrderID: nativeOrderID}]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, tenantID string, _ models.OrderFilter, _ *pkgutils.Pagination) ([]*models.CanonicalOrder, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CanonicalOrder
	for k, o := range f.orders {
		if k.TenantID == tenantID {
			out = append(out, o)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeOrders) count(tenantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.orders {
		if k.TenantID == tenantID {
			n++
		}
	}
	return n
}

// ---------------- products ----------------

type fakeProducts struct {
	mu       sync.Mutex
	products []*models.Product
}

func (f *fakeProducts) GetProduct(_ context.Context, tenantID, productID string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.TenantID == tenantID && p.ID == productID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeProducts) find(tenantID string, match func(*models.Product) bool) []*models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Product
	for _, p := range f.products {
		if p.TenantID == tenantID && match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeProducts) FindProductsByCode(_ context.Context, tenantID, code string) ([]*models.Product, error) {
	return f.find(tenantID, func(p *models.Product) bool { return p.Code == code }), nil
}

func (f *fakeProducts) FindProductsByBarcode(_ context.Context, tenantID, barcode string) ([]*models.Product, error) {
	return f.find(tenantID, func(p *models.Product) bool { return p.Barcode == barcode }), nil
}

func (f *fakeProducts) SetPriceStock(_ context.Context, tenantID, productID string, price decimal.Decimal, stock int) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.TenantID == tenantID && p.ID == productID {
			p.SalePrice = price
			p.Stock = stock
			cp := *p
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeProducts) AdjustStock(_ context.Context, tenantID, productID string, delta int) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.TenantID == tenantID && p.ID == productID {
			if p.Stock+delta < 0 {
				return nil, utils.ErrInsufficientStock
			}
			p.Stock += delta
			cp := *p
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

// ---------------- links ----------------

type fakeLinks struct {
	mu    sync.Mutex
	links map[string]*models.ProductLink
}

func newFakeLinks(list ...*models.ProductLink) *fakeLinks {
	f := &fakeLinks{links: make(map[string]*models.ProductLink)}
	for _, l := range list {
		f.links[l.ID] = l
	}
	return f
}

func (f *fakeLinks) UpsertLink(_ context.Context, link *models.ProductLink) (*models.ProductLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.links {
		if existing.ProductID == link.ProductID && existing.AccountID == link.AccountID {
			cp := *link
			cp.ID = id
			cp.CreatedAt = existing.CreatedAt
			f.links[id] = &cp
			out := cp
			return &out, nil
		}
	}
	cp := *link
	f.links[link.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeLinks) GetLink(_ context.Context, tenantID, linkID string) (*models.ProductLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[linkID]
	if !ok || l.TenantID != tenantID {
		return nil, utils.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLinks) ListActiveLinks(_ context.Context, tenantID, productID string) ([]*models.ProductLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ProductLink
	for _, l := range f.links {
		if l.TenantID == tenantID && l.ProductID == productID && l.Status == models.LinkStatusActive {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLinks) DeleteLink(_ context.Context, tenantID, productID, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, l := range f.links {
		if l.TenantID == tenantID && l.ProductID == productID && l.AccountID == accountID {
			delete(f.links, id)
			return nil
		}
	}
	return utils.ErrLinkNotFound
}

func (f *fakeLinks) UpdateRemoteState(_ context.Context, linkID string, price decimal.Decimal, stock int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[linkID]
	if !ok {
		return utils.ErrLinkNotFound
	}
	l.RemotePrice = price
	l.RemoteStock = stock
	return nil
}

func (f *fakeLinks) get(id string) *models.ProductLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.links[id]
	return &cp
}

// ---------------- queue ----------------

type fakeQueue struct {
	mu        sync.Mutex
	items     []*models.SyncQueueItem
	claimedAt map[string]time.Time
	now       func() time.Time
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{claimedAt: make(map[string]time.Time), now: time.Now}
}

func (q *fakeQueue) Enqueue(_ context.Context, item *models.SyncQueueItem) (*models.SyncQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ProductLinkID == item.ProductLinkID && it.Status == models.QueueStatusPending {
			it.TargetPrice = item.TargetPrice
			it.TargetStock = item.TargetStock
			cp := *it
			return &cp, nil
		}
	}
	cp := *item
	cp.Status = models.QueueStatusPending
	q.items = append(q.items, &cp)
	out := cp
	return &out, nil
}

func (q *fakeQueue) Claim(_ context.Context, tenantID string, limit int) ([]*models.SyncQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// порядок как в SQL: без попыток первыми, затем по last_attempt_at, затем по created_at
	candidates := make([]*models.SyncQueueItem, 0, len(q.items))
	for _, it := range q.items {
		if it.Status == models.QueueStatusPending && (tenantID == "" || it.TenantID == tenantID) {
			candidates = append(candidates, it)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].LastAttemptAt, candidates[j].LastAttemptAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	var out []*models.SyncQueueItem
	for _, it := range candidates {
		if len(out) >= limit {
			break
		}
		if q.linkProcessing(it.ProductLinkID) {
			continue
		}
		it.Status = models.QueueStatusProcessing
		it.Attempts++
		q.claimedAt[it.ID] = q.now()
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

func (q *fakeQueue) linkProcessing(linkID string) bool {
	for _, it := range q.items {
		if it.ProductLinkID == linkID && it.Status == models.QueueStatusProcessing {
			return true
		}
	}
	return false
}

func (q *fakeQueue) ReleaseStale(_ context.Context, lease time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Status == models.QueueStatusProcessing && q.now().Sub(q.claimedAt[it.ID]) > lease {
			it.Status = models.QueueStatusPending
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) Release(_ context.Context, ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		if it := q.find(id); it != nil && it.Status == models.QueueStatusProcessing {
			it.Status = models.QueueStatusPending
			it.Attempts--
		}
	}
	return nil
}

func (q *fakeQueue) MarkDone(_ context.Context, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := q.find(itemID)
	if it == nil {
		return utils.ErrNotFound
	}
	it.Status = models.QueueStatusDone
	it.LastError = ""
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, itemID, errText string, at time.Time) (models.QueueStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := q.find(itemID)
	if it == nil {
		return "", utils.ErrNotFound
	}
	it.Status = models.QueueStatusPending
	for _, other := range q.items {
		if other.ID != it.ID && other.ProductLinkID == it.ProductLinkID && other.Status == models.QueueStatusPending {
			it.Status = models.QueueStatusSuperseded
		}
	}
	it.LastError = errText
	it.LastAttemptAt = &at
	return it.Status, nil
}

func (q *fakeQueue) find(id string) *models.SyncQueueItem {
	for _, it := range q.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (q *fakeQueue) get(id string) models.SyncQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.find(id)
}

// ---------------- misc ----------------

type fakeTx struct{}

func (fakeTx) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fakeBilling struct {
	allow bool
	err   error
}

func (f fakeBilling) CanSync(context.Context, string) (bool, error) { return f.allow, f.err }

type fakeCache struct {
	mu    sync.Mutex
	locks map[string]bool
}

func newFakeCache() *fakeCache { return &fakeCache{locks: make(map[string]bool)} }

func (c *fakeCache) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (c *fakeCache) GetWithTenant(context.Context, string, string) ([]byte, error) {
	return nil, nil
}
func (c *fakeCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (c *fakeCache) SetWithTenant(context.Context, string, []byte, string, time.Duration) error {
	return nil
}
func (c *fakeCache) Delete(context.Context, string) error { return nil }
func (c *fakeCache) Close() error                         { return nil }

func (c *fakeCache) LockWithTenant(_ context.Context, key, tenantID string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := tenantID + ":" + key
	if c.locks[k] {
		return false, nil
	}
	c.locks[k] = true
	return true, nil
}

func (c *fakeCache) UnlockWithTenant(_ context.Context, key, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, tenantID+":"+key)
	return nil
}

type recordedEvent struct {
	tenantID, key, eventType string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) PublishEvent(_ context.Context, tenantID, key, eventType string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{tenantID: tenantID, key: key, eventType: eventType})
	return nil
}

// fakeConnector настраиваемый коннектор для тестов сервисов
type fakeConnector struct {
	platform models.Platform
	limits   connectors.Limits
	fetch    func(ctx context.Context, r models.TimeRange) ([]raw.Order, error)
	catalog  []models.RemoteListing
	push     func(ctx context.Context, update connectors.PriceStockUpdate) (connectors.PushReceipt, error)

	mu     sync.Mutex
	ranges []models.TimeRange
	pushes []connectors.PriceStockUpdate
}

func (c *fakeConnector) Platform() models.Platform { return c.platform }
func (c *fakeConnector) Limits() connectors.Limits { return c.limits }

func (c *fakeConnector) FetchOrders(ctx context.Context, _ *models.Account, r models.TimeRange) ([]raw.Order, error) {
	c.mu.Lock()
	c.ranges = append(c.ranges, r)
	c.mu.Unlock()
	if c.fetch == nil {
		return nil, nil
	}
	return c.fetch(ctx, r)
}

func (c *fakeConnector) FetchCatalog(context.Context, *models.Account, connectors.CatalogQuery) ([]models.RemoteListing, error) {
	return c.catalog, nil
}

func (c *fakeConnector) PushPriceStock(ctx context.Context, _ *models.Account, update connectors.PriceStockUpdate) (connectors.PushReceipt, error) {
	c.mu.Lock()
	c.pushes = append(c.pushes, update)
	c.mu.Unlock()
	if c.push == nil {
		return connectors.PushReceipt{Reference: "ok", Price: update.Price, Stock: update.Stock}, nil
	}
	return c.push(ctx, update)
}

func (c *fakeConnector) pushCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushes)
}

// fakePublisher коннектор с возможностью публикации листингов
type fakePublisher struct {
	*fakeConnector
	published []*models.Product
}

func (p *fakePublisher) PublishListing(_ context.Context, _ *models.Account, product *models.Product) (models.RemoteListing, error) {
	p.published = append(p.published, product)
	return models.RemoteListing{ListingID: "new-" + product.Code, Code: product.Code, Price: product.SalePrice, Stock: product.Stock}, nil
}
