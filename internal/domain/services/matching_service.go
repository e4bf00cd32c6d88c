package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/google/uuid"
)

// MatchingService связывает локальные товары с листингами площадок
type MatchingService struct {
	products ProductRepository
	links    LinkRepository
	accounts AccountRepository
	registry *connectors.Registry
	logger   interfaces.LoggerPort
}

// NewMatchingService создает сервис сопоставления
func NewMatchingService(products ProductRepository, links LinkRepository, accounts AccountRepository, registry *connectors.Registry, logger interfaces.LoggerPort) *MatchingService {
	return &MatchingService{
		products: products,
		links:    links,
		accounts: accounts,
		registry: registry,
		logger:   logger,
	}
}

// Resolve ищет локальный товар для листинга: сначала по коду, затем по штрихкоду.
// Только точные совпадения; если штрихкод есть у нескольких товаров, совпадения нет.
// При успехе связь (product, account) создается или обновляется.
func (s *MatchingService) Resolve(ctx context.Context, tenantID, accountID string, listing models.RemoteListing) (*models.MatchResult, error) {
	if listing.ListingID == "" {
		return nil, errors.New("listing id is required")
	}
	if _, err := s.accounts.GetAccount(ctx, tenantID, accountID); err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	return s.resolve(ctx, tenantID, accountID, listing)
}

func (s *MatchingService) resolve(ctx context.Context, tenantID, accountID string, listing models.RemoteListing) (*models.MatchResult, error) {
	result := &models.MatchResult{Listing: listing}

	product, method, err := s.findProduct(ctx, tenantID, listing)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return result, nil
	}

	link, err := s.links.UpsertLink(ctx, newLink(tenantID, product.ID, accountID, listing, method))
	if err != nil {
		return nil, fmt.Errorf("failed to save link: %w", err)
	}

	result.Matched = true
	result.MatchedBy = method
	result.ProductID = product.ID
	result.Link = link
	return result, nil
}

func (s *MatchingService) findProduct(ctx context.Context, tenantID string, listing models.RemoteListing) (*models.Product, models.MatchMethod, error) {
	if listing.Code != "" {
		found, err := s.products.FindProductsByCode(ctx, tenantID, listing.Code)
		if err != nil {
			return nil, "", fmt.Errorf("failed to find products by code: %w", err)
		}
		if len(found) == 1 {
			return found[0], models.MatchedByCode, nil
		}
	}

	if listing.Barcode != "" {
		found, err := s.products.FindProductsByBarcode(ctx, tenantID, listing.Barcode)
		if err != nil {
			return nil, "", fmt.Errorf("failed to find products by barcode: %w", err)
		}
		if len(found) == 1 {
			return found[0], models.MatchedByBarcode, nil
		}
	}

	return nil, "", nil
}

// LinkManually связывает товар с листингом, выбранным пользователем
func (s *MatchingService) LinkManually(ctx context.Context, tenantID, productID, accountID string, listing models.RemoteListing) (*models.ProductLink, error) {
	if listing.ListingID == "" {
		return nil, errors.New("listing id is required")
	}
	if _, err := s.accounts.GetAccount(ctx, tenantID, accountID); err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	if _, err := s.products.GetProduct(ctx, tenantID, productID); err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", productID, err)
	}

	link, err := s.links.UpsertLink(ctx, newLink(tenantID, productID, accountID, listing, models.MatchedByManual))
	if err != nil {
		return nil, fmt.Errorf("failed to save link: %w", err)
	}
	return link, nil
}

// Unmatch удаляет связь товара с аккаунтом. Заказы и связи с другими аккаунтами не затрагиваются.
func (s *MatchingService) Unmatch(ctx context.Context, tenantID, productID, accountID string) error {
	if err := s.links.DeleteLink(ctx, tenantID, productID, accountID); err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	s.logger.InfoWithContext(ctx, "Связь товара с аккаунтом удалена",
		interfaces.LogField{Key: "product_id", Value: productID},
		interfaces.LogField{Key: "account_id", Value: accountID},
	)
	return nil
}

// AutoMatch загружает каталог аккаунта и пытается сопоставить каждый листинг
func (s *MatchingService) AutoMatch(ctx context.Context, tenantID, accountID string, query connectors.CatalogQuery) (*models.AutoMatchResult, error) {
	account, connector, err := s.accountConnector(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	listings, err := connector.FetchCatalog(ctx, account, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}

	out := &models.AutoMatchResult{Total: len(listings), Results: make([]*models.MatchResult, 0, len(listings))}
	for _, l := range listings {
		res, err := s.resolve(ctx, tenantID, accountID, l)
		if err != nil {
			return nil, err
		}
		if res.Matched {
			out.Matched++
		} else {
			out.Unmatched++
		}
		out.Results = append(out.Results, res)
	}

	s.logger.InfoWithContext(ctx, "Автосопоставление каталога завершено",
		interfaces.LogField{Key: "account_id", Value: accountID},
		interfaces.LogField{Key: "total", Value: out.Total},
		interfaces.LogField{Key: "matched", Value: out.Matched},
	)
	return out, nil
}

// PublishAsNew создает на площадке новый листинг из локального товара и связывает их
func (s *MatchingService) PublishAsNew(ctx context.Context, tenantID, productID, accountID string) (*models.ProductLink, error) {
	account, connector, err := s.accountConnector(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	publisher, ok := connector.(connectors.Publisher)
	if !ok {
		return nil, fmt.Errorf("publish to %s: %w", account.Platform, connectors.ErrNotSupported)
	}

	product, err := s.products.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", productID, err)
	}

	listing, err := publisher.PublishListing(ctx, account, product)
	if err != nil {
		return nil, fmt.Errorf("failed to publish listing: %w", err)
	}

	link, err := s.links.UpsertLink(ctx, newLink(tenantID, productID, accountID, listing, models.MatchedByPublished))
	if err != nil {
		return nil, fmt.Errorf("failed to save link: %w", err)
	}
	return link, nil
}

func (s *MatchingService) accountConnector(ctx context.Context, tenantID, accountID string) (*models.Account, connectors.Connector, error) {
	account, err := s.accounts.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	connector, err := s.registry.Get(account.Platform)
	if err != nil {
		return nil, nil, err
	}
	return account, connector, nil
}

func newLink(tenantID, productID, accountID string, listing models.RemoteListing, method models.MatchMethod) *models.ProductLink {
	now := time.Now().UTC()
	return &models.ProductLink{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		ProductID:       productID,
		AccountID:       accountID,
		RemoteListingID: listing.ListingID,
		RemoteVariantID: listing.VariantID,
		RemotePrice:     listing.Price,
		RemoteStock:     listing.Stock,
		Status:          models.LinkStatusActive,
		MatchedBy:       method,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
