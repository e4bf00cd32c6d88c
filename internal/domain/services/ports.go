package services

import (
	"context"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/utils"
	"github.com/shopspring/decimal"
)

// AccountRepository чтение подключений арендаторов к площадкам
type AccountRepository interface {
	// GetAccount возвращает utils.ErrNotFound, если аккаунт не принадлежит арендатору
	GetAccount(ctx context.Context, tenantID, accountID string) (*models.Account, error)
	// ListAccounts пустые tenantID и platform означают "любой"
	ListAccounts(ctx context.Context, tenantID string, platform models.Platform, activeOnly bool) ([]*models.Account, error)
}

// OrderRepository хранилище канонических заказов
type OrderRepository interface {
	// UpsertOrder вставляет заказ или полностью обновляет существующий по (tenant, platform, native id).
	// inserted=true, если строка создана впервые.
	UpsertOrder(ctx context.Context, order *models.CanonicalOrder) (inserted bool, err error)
	GetOrder(ctx context.Context, tenantID string, platform models.Platform, nativeOrderID string) (*models.CanonicalOrder, error)
	ListOrders(ctx context.Context, tenantID string, filter models.OrderFilter, pagination *utils.Pagination) ([]*models.CanonicalOrder, int64, error)
}

// ProductRepository локальный каталог арендатора
type ProductRepository interface {
	GetProduct(ctx context.Context, tenantID, productID string) (*models.Product, error)
	FindProductsByCode(ctx context.Context, tenantID, code string) ([]*models.Product, error)
	FindProductsByBarcode(ctx context.Context, tenantID, barcode string) ([]*models.Product, error)
	SetPriceStock(ctx context.Context, tenantID, productID string, price decimal.Decimal, stock int) (*models.Product, error)
	// AdjustStock атомарно меняет остаток на delta; utils.ErrInsufficientStock, если итог стал бы отрицательным
	AdjustStock(ctx context.Context, tenantID, productID string, delta int) (*models.Product, error)
}

// LinkRepository связи локальных товаров с листингами
type LinkRepository interface {
	// UpsertLink создает связь или обновляет существующую по (product, account)
	UpsertLink(ctx context.Context, link *models.ProductLink) (*models.ProductLink, error)
	GetLink(ctx context.Context, tenantID, linkID string) (*models.ProductLink, error)
	ListActiveLinks(ctx context.Context, tenantID, productID string) ([]*models.ProductLink, error)
	// DeleteLink удаляет только связь (product, account); utils.ErrLinkNotFound, если ее нет
	DeleteLink(ctx context.Context, tenantID, productID, accountID string) error
	UpdateRemoteState(ctx context.Context, linkID string, price decimal.Decimal, stock int) error
}

// QueueRepository очередь исходящих изменений цены и остатка
type QueueRepository interface {
	// Enqueue добавляет изменение; ожидающее изменение той же связи заменяется новыми значениями
	Enqueue(ctx context.Context, item *models.SyncQueueItem) (*models.SyncQueueItem, error)
	// Claim атомарно переводит до limit ожидающих элементов в processing; пустой tenantID - все арендаторы
	Claim(ctx context.Context, tenantID string, limit int) ([]*models.SyncQueueItem, error)
	// ReleaseStale возвращает в pending элементы, застрявшие в processing дольше lease
	ReleaseStale(ctx context.Context, lease time.Duration) (int, error)
	Release(ctx context.Context, itemIDs []string) error
	MarkDone(ctx context.Context, itemID string) error
	// MarkFailed возвращает элемент в pending с текстом ошибки либо в superseded,
	// если для связи уже есть более новое ожидающее изменение
	MarkFailed(ctx context.Context, itemID, errText string, at time.Time) (models.QueueStatus, error)
}

// BillingGate отвечает, разрешена ли арендатору синхронизация
type BillingGate interface {
	CanSync(ctx context.Context, tenantID string) (bool, error)
}

// EventPublisher публикация доменных событий
type EventPublisher interface {
	PublishEvent(ctx context.Context, tenantID, key, eventType string, payload interface{}) error
}

// SyncRecorder метрики синхронизации
type SyncRecorder interface {
	OrdersSynced(platform models.Platform, processed, failed int)
	ChunkFailed(platform models.Platform, kind string)
	SyncDuration(platform models.Platform, d time.Duration)
	PushItem(platform models.Platform, status string)
}

type nopRecorder struct{}

func (nopRecorder) OrdersSynced(models.Platform, int, int)      {}
func (nopRecorder) ChunkFailed(models.Platform, string)         {}
func (nopRecorder) SyncDuration(models.Platform, time.Duration) {}
func (nopRecorder) PushItem(models.Platform, string)            {}

// NopRecorder не записывает метрики
func NopRecorder() SyncRecorder { return nopRecorder{} }

type nopPublisher struct{}

func (nopPublisher) PublishEvent(context.Context, string, string, string, interface{}) error {
	return nil
}

// NopPublisher не публикует события
func NopPublisher() EventPublisher { return nopPublisher{} }
