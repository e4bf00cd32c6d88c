package services

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/tx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogChangeResult новое состояние товара и поставленные в очередь изменения
type CatalogChangeResult struct {
	Product *models.Product         `json:"product"`
	Queued  []*models.SyncQueueItem `json:"queued"`
}

// CatalogService изменения цены и остатка локальных товаров
type CatalogService struct {
	products  ProductRepository
	links     LinkRepository
	queue     QueueRepository
	txManager tx.TxManager
	logger    interfaces.LoggerPort
}

// NewCatalogService создает сервис каталога
func NewCatalogService(products ProductRepository, links LinkRepository, queue QueueRepository, txManager tx.TxManager, logger interfaces.LoggerPort) *CatalogService {
	return &CatalogService{
		products:  products,
		links:     links,
		queue:     queue,
		txManager: txManager,
		logger:    logger,
	}
}

// UpdatePriceStock задает цену и остаток товара и ставит изменение в очередь для каждой активной связи
func (s *CatalogService) UpdatePriceStock(ctx context.Context, tenantID, productID string, price decimal.Decimal, stock int) (*CatalogChangeResult, error) {
	if price.IsNegative() {
		return nil, utils.ErrInvalidPrice
	}
	if stock < 0 {
		return nil, utils.ErrInsufficientStock
	}

	return s.change(ctx, tenantID, func(ctx context.Context) (*models.Product, error) {
		return s.products.SetPriceStock(ctx, tenantID, productID, price, stock)
	})
}

// AdjustStock атомарно изменяет остаток на delta (отрицательный delta - списание)
func (s *CatalogService) AdjustStock(ctx context.Context, tenantID, productID string, delta int) (*CatalogChangeResult, error) {
	return s.change(ctx, tenantID, func(ctx context.Context) (*models.Product, error) {
		return s.products.AdjustStock(ctx, tenantID, productID, delta)
	})
}

func (s *CatalogService) change(ctx context.Context, tenantID string, mutate func(ctx context.Context) (*models.Product, error)) (*CatalogChangeResult, error) {
	result := &CatalogChangeResult{}

	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		product, err := mutate(ctx)
		if err != nil {
			return err
		}
		result.Product = product

		links, err := s.links.ListActiveLinks(ctx, tenantID, product.ID)
		if err != nil {
			return fmt.Errorf("failed to list links: %w", err)
		}

		now := time.Now().UTC()
		for _, link := range links {
			item, err := s.queue.Enqueue(ctx, &models.SyncQueueItem{
				ID:            uuid.New().String(),
				TenantID:      tenantID,
				ProductLinkID: link.ID,
				TargetPrice:   product.SalePrice,
				TargetStock:   product.Stock,
				Status:        models.QueueStatusPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
			if err != nil {
				return fmt.Errorf("failed to enqueue change for link %s: %w", link.ID, err)
			}
			result.Queued = append(result.Queued, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Изменение товара поставлено в очередь синхронизации",
		interfaces.LogField{Key: "product_id", Value: result.Product.ID},
		interfaces.LogField{Key: "links", Value: len(result.Queued)},
	)
	return result, nil
}
