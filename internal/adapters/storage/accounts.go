package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, tenant_id, platform, name, base_url, credentials, active, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var creds []byte
	if err := row.Scan(&a.ID, &a.TenantID, &a.Platform, &a.Name, &a.BaseURL, &creds, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Credentials = json.RawMessage(creds)
	return &a, nil
}

// SaveAccount создает или обновляет подключение арендатора
func (s *Storage) SaveAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO marketplace.accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			base_url = EXCLUDED.base_url,
			credentials = EXCLUDED.credentials,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		WHERE marketplace.accounts.tenant_id = EXCLUDED.tenant_id
	`

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	creds := []byte(account.Credentials)
	if len(creds) == 0 {
		creds = []byte("{}")
	}

	_, err := s.exec(ctx).Exec(ctx, query, account.ID, account.TenantID, account.Platform, account.Name,
		account.BaseURL, creds, account.Active, now)
	if err != nil {
		return persistenceErr("save account", err)
	}
	return nil
}

// GetAccount возвращает аккаунт арендатора; пустой tenantID - без проверки арендатора (фоновые задачи)
func (s *Storage) GetAccount(ctx context.Context, tenantID, accountID string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM marketplace.accounts
		WHERE id = $1 AND ($2::text = '' OR tenant_id = $2)
	`

	a, err := scanAccount(s.exec(ctx).QueryRow(ctx, query, accountID, tenantID))
	if err != nil {
		if isNoRows(err) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// ListAccounts возвращает аккаунты с фильтрами по арендатору и площадке
func (s *Storage) ListAccounts(ctx context.Context, tenantID string, platform models.Platform, activeOnly bool) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM marketplace.accounts
		WHERE ($1::text = '' OR tenant_id = $1)
		  AND ($2::text = '' OR platform = $2)
		  AND (NOT $3 OR active)
		ORDER BY tenant_id, created_at
	`

	rows, err := s.exec(ctx).Query(ctx, query, tenantID, string(platform), activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error while iterating account rows: %w", err)
	}
	return accounts, nil
}
