package postgres

import (
	"context"
	"fmt"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const linkColumns = `id, tenant_id, product_id, account_id, remote_listing_id, remote_variant_id, remote_price,
	remote_stock, status, matched_by, created_at, updated_at`

func scanLink(row pgx.Row) (*models.ProductLink, error) {
	var l models.ProductLink
	err := row.Scan(&l.ID, &l.TenantID, &l.ProductID, &l.AccountID, &l.RemoteListingID, &l.RemoteVariantID,
		&l.RemotePrice, &l.RemoteStock, &l.Status, &l.MatchedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertLink создает связь или перепривязывает существующую связь (product, account) к новому листингу
func (s *Storage) UpsertLink(ctx context.Context, link *models.ProductLink) (*models.ProductLink, error) {
	query := `
		INSERT INTO marketplace.product_links (` + linkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (product_id, account_id)
		DO UPDATE SET
			remote_listing_id = EXCLUDED.remote_listing_id,
			remote_variant_id = EXCLUDED.remote_variant_id,
			remote_price = EXCLUDED.remote_price,
			remote_stock = EXCLUDED.remote_stock,
			status = EXCLUDED.status,
			matched_by = EXCLUDED.matched_by,
			updated_at = now()
		WHERE marketplace.product_links.tenant_id = EXCLUDED.tenant_id
		RETURNING ` + linkColumns

	status := link.Status
	if status == "" {
		status = models.LinkStatusActive
	}

	saved, err := scanLink(s.exec(ctx).QueryRow(ctx, query, link.ID, link.TenantID, link.ProductID, link.AccountID,
		link.RemoteListingID, link.RemoteVariantID, link.RemotePrice, link.RemoteStock, string(status), string(link.MatchedBy)))
	if err != nil {
		if isNoRows(err) {
			// связь принадлежит другому арендатору
			return nil, utils.ErrLinkExists
		}
		return nil, persistenceErr("upsert link", err)
	}
	return saved, nil
}

// GetLink возвращает связь; пустой tenantID - без проверки арендатора
func (s *Storage) GetLink(ctx context.Context, tenantID, linkID string) (*models.ProductLink, error) {
	query := `SELECT ` + linkColumns + ` FROM marketplace.product_links WHERE id = $1 AND ($2::text = '' OR tenant_id = $2)`

	l, err := scanLink(s.exec(ctx).QueryRow(ctx, query, linkID, tenantID))
	if err != nil {
		if isNoRows(err) {
			return nil, utils.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return l, nil
}

// ListActiveLinks активные связи товара со всеми аккаунтами
func (s *Storage) ListActiveLinks(ctx context.Context, tenantID, productID string) ([]*models.ProductLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM marketplace.product_links
		WHERE tenant_id = $1 AND product_id = $2 AND status = 'active'
		ORDER BY created_at
	`

	rows, err := s.exec(ctx).Query(ctx, query, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*models.ProductLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link row: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error while iterating link rows: %w", err)
	}
	return links, nil
}

// DeleteLink удаляет связь (product, account); ее ожидающие изменения удаляются каскадом
func (s *Storage) DeleteLink(ctx context.Context, tenantID, productID, accountID string) error {
	tag, err := s.exec(ctx).Exec(ctx,
		`DELETE FROM marketplace.product_links WHERE tenant_id = $1 AND product_id = $2 AND account_id = $3`,
		tenantID, productID, accountID)
	if err != nil {
		return persistenceErr("delete link", err)
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrLinkNotFound
	}
	return nil
}

// UpdateRemoteState запоминает цену и остаток, подтвержденные площадкой
func (s *Storage) UpdateRemoteState(ctx context.Context, linkID string, price decimal.Decimal, stock int) error {
	tag, err := s.exec(ctx).Exec(ctx,
		`UPDATE marketplace.product_links SET remote_price = $2, remote_stock = $3, updated_at = now() WHERE id = $1`,
		linkID, price, stock)
	if err != nil {
		return persistenceErr("update link remote state", err)
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrLinkNotFound
	}
	return nil
}
