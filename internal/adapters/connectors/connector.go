package connectors

import (
	"context"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"github.com/shopspring/decimal"
)

// Limits ограничения выборки, свойственные конкретной площадке
type Limits struct {
	// MaxWindow самая давняя граница выборки относительно конца окна
	MaxWindow time.Duration
	// ChunkWidth ширина одного подынтервала выборки
	ChunkWidth time.Duration
	PageSize   int
	// Concurrency число одновременных запросов к одному аккаунту
	Concurrency int
	// Location если задан, границы подынтервалов выравниваются на полночь в этом поясе
	Location *time.Location
}

// CatalogQuery параметры поиска листингов
type CatalogQuery struct {
	Code    string `json:"code,omitempty"`
	Barcode string `json:"barcode,omitempty"`
	Search  string `json:"search,omitempty"`
	// MaxItems ограничивает общий размер выборки, 0 - значение по умолчанию коннектора
	MaxItems int `json:"maxItems,omitempty"`
}

// PriceStockUpdate целевые цена и остаток листинга
type PriceStockUpdate struct {
	ListingID string
	VariantID string
	Price     decimal.Decimal
	Stock     int
}

// PushReceipt подтверждение площадки о принятии изменения
type PushReceipt struct {
	// Reference идентификатор пакетной операции или листинга на площадке
	Reference string
	Price     decimal.Decimal
	Stock     int
}

// Connector адаптер одной внешней площадки.
// Коннекторы не хранят состояние: все данные подключения приходят в Account.
type Connector interface {
	Platform() models.Platform
	Limits() Limits

	// FetchOrders возвращает заказы площадки за полуинтервал r
	FetchOrders(ctx context.Context, account *models.Account, r models.TimeRange) ([]raw.Order, error)

	// FetchCatalog возвращает листинги аккаунта, подходящие под запрос
	FetchCatalog(ctx context.Context, account *models.Account, query CatalogQuery) ([]models.RemoteListing, error)

	// PushPriceStock отправляет цену и остаток одного листинга
	PushPriceStock(ctx context.Context, account *models.Account, update PriceStockUpdate) (PushReceipt, error)
}

// Publisher коннектор, умеющий создавать новый листинг из локального товара
type Publisher interface {
	PublishListing(ctx context.Context, account *models.Account, product *models.Product) (models.RemoteListing, error)
}

// DefaultMaxWindow 180 суток включительно: общий предел выборки у всех текущих площадок
const DefaultMaxWindow = 180 * 24 * time.Hour
