package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const productColumns = `id, tenant_id, code, barcode, name, sale_price, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.TenantID, &p.Code, &p.Barcode, &p.Name, &p.SalePrice, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProduct создает или обновляет товар локального каталога
func (s *Storage) SaveProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO marketplace.products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			code = EXCLUDED.code,
			barcode = EXCLUDED.barcode,
			name = EXCLUDED.name,
			sale_price = EXCLUDED.sale_price,
			stock = EXCLUDED.stock,
			updated_at = EXCLUDED.updated_at
		WHERE marketplace.products.tenant_id = EXCLUDED.tenant_id
	`

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.exec(ctx).Exec(ctx, query, product.ID, product.TenantID, product.Code, product.Barcode,
		product.Name, product.SalePrice, product.Stock, now)
	if err != nil {
		return persistenceErr("save product", err)
	}
	return nil
}

// GetProduct возвращает товар арендатора
func (s *Storage) GetProduct(ctx context.Context, tenantID, productID string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM marketplace.products WHERE tenant_id = $1 AND id = $2`

	p, err := scanProduct(s.exec(ctx).QueryRow(ctx, query, tenantID, productID))
	if err != nil {
		if isNoRows(err) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// FindProductsByCode точное совпадение кода товара
func (s *Storage) FindProductsByCode(ctx context.Context, tenantID, code string) ([]*models.Product, error) {
	return s.findProducts(ctx, `SELECT `+productColumns+` FROM marketplace.products WHERE tenant_id = $1 AND code = $2 ORDER BY id`, tenantID, code)
}

// FindProductsByBarcode точное совпадение штрихкода; товаров может быть несколько
func (s *Storage) FindProductsByBarcode(ctx context.Context, tenantID, barcode string) ([]*models.Product, error) {
	if barcode == "" {
		return nil, nil
	}
	return s.findProducts(ctx, `SELECT `+productColumns+` FROM marketplace.products WHERE tenant_id = $1 AND barcode = $2 ORDER BY id`, tenantID, barcode)
}

func (s *Storage) findProducts(ctx context.Context, query string, args ...interface{}) ([]*models.Product, error) {
	rows, err := s.exec(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error while iterating product rows: %w", err)
	}
	return products, nil
}

// SetPriceStock задает цену и остаток товара
func (s *Storage) SetPriceStock(ctx context.Context, tenantID, productID string, price decimal.Decimal, stock int) (*models.Product, error) {
	query := `
		UPDATE marketplace.products
		SET sale_price = $3, stock = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + productColumns

	p, err := scanProduct(s.exec(ctx).QueryRow(ctx, query, tenantID, productID, price, stock))
	if err != nil {
		if isNoRows(err) {
			return nil, utils.ErrNotFound
		}
		return nil, persistenceErr("set price and stock", err)
	}
	return p, nil
}

// AdjustStock атомарно меняет остаток на delta одним UPDATE, без чтения перед записью
func (s *Storage) AdjustStock(ctx context.Context, tenantID, productID string, delta int) (*models.Product, error) {
	query := `
		UPDATE marketplace.products
		SET stock = stock + $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND stock + $3 >= 0
		RETURNING ` + productColumns

	exec := s.exec(ctx)
	p, err := scanProduct(exec.QueryRow(ctx, query, tenantID, productID, delta))
	if err == nil {
		return p, nil
	}
	if !isNoRows(err) {
		return nil, persistenceErr("adjust stock", err)
	}

	// строка не обновилась: либо товара нет, либо остатка не хватает
	var exists bool
	if err := exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM marketplace.products WHERE tenant_id = $1 AND id = $2)`,
		tenantID, productID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check product: %w", err)
	}
	if !exists {
		return nil, utils.ErrNotFound
	}
	return nil, utils.ErrInsufficientStock
}
