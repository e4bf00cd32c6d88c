package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/jackc/pgx/v5"
)

const queueColumns = `id, tenant_id, product_link_id, target_price, target_stock, status, last_error, last_attempt_at,
	attempts, created_at, updated_at`

// returnToPending статус, в который возвращается незавершенный элемент:
// superseded, если для той же связи уже ждет более новое изменение
const returnToPending = `CASE WHEN EXISTS (
		SELECT 1 FROM marketplace.sync_queue p
		WHERE p.product_link_id = q.product_link_id AND p.status = 'pending' AND p.id <> q.id
	) THEN 'superseded' ELSE 'pending' END`

func scanQueueItem(row pgx.Row) (*models.SyncQueueItem, error) {
	var it models.SyncQueueItem
	err := row.Scan(&it.ID, &it.TenantID, &it.ProductLinkID, &it.TargetPrice, &it.TargetStock, &it.Status,
		&it.LastError, &it.LastAttemptAt, &it.Attempts, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func collectQueueItems(rows pgx.Rows) ([]*models.SyncQueueItem, error) {
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error while iterating queue rows: %w", err)
	}
	return items, nil
}

// Enqueue ставит изменение в очередь. Если для связи уже есть ожидающий элемент,
// он получает новые целевые значения вместо создания второго.
func (s *Storage) Enqueue(ctx context.Context, item *models.SyncQueueItem) (*models.SyncQueueItem, error) {
	query := `
		INSERT INTO marketplace.sync_queue (id, tenant_id, product_link_id, target_price, target_stock, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', now(), now())
		ON CONFLICT (product_link_id) WHERE status = 'pending'
		DO UPDATE SET
			target_price = EXCLUDED.target_price,
			target_stock = EXCLUDED.target_stock,
			updated_at = now()
		RETURNING ` + queueColumns

	saved, err := scanQueueItem(s.exec(ctx).QueryRow(ctx, query,
		item.ID, item.TenantID, item.ProductLinkID, item.TargetPrice, item.TargetStock))
	if err != nil {
		return nil, persistenceErr("enqueue change", err)
	}
	return saved, nil
}

// Claim атомарно переводит до limit ожидающих элементов в processing.
// Строки очереди и их связи блокируются с SKIP LOCKED, поэтому параллельные воркеры
// получают непересекающиеся наборы и никогда не берут две записи одной связи.
// Сначала идут элементы без попыток, затем давно неудачные: упавшие на прошлом проходе
// уходят в конец очереди и не занимают весь пакет.
func (s *Storage) Claim(ctx context.Context, tenantID string, limit int) ([]*models.SyncQueueItem, error) {
	query := `
		UPDATE marketplace.sync_queue q
		SET status = 'processing', attempts = q.attempts + 1, claimed_at = now(), updated_at = now()
		WHERE q.id IN (
			SELECT c.id
			FROM marketplace.sync_queue c
			JOIN marketplace.product_links l ON l.id = c.product_link_id
			WHERE c.status = 'pending'
			  AND ($1::text = '' OR c.tenant_id = $1)
			  AND NOT EXISTS (
				SELECT 1 FROM marketplace.sync_queue p
				WHERE p.product_link_id = c.product_link_id AND p.status = 'processing'
			  )
			ORDER BY c.last_attempt_at NULLS FIRST, c.created_at, c.id
			LIMIT $2
			FOR UPDATE OF c, l SKIP LOCKED
		)
		AND q.status = 'pending'
		RETURNING ` + queueColumns

	rows, err := s.exec(ctx).Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue items: %w", err)
	}
	return collectQueueItems(rows)
}

// ReleaseStale возвращает элементы, которые дольше lease находятся в processing
func (s *Storage) ReleaseStale(ctx context.Context, lease time.Duration) (int, error) {
	query := `
		UPDATE marketplace.sync_queue q
		SET status = ` + returnToPending + `, claimed_at = NULL, updated_at = now()
		WHERE q.status = 'processing' AND q.claimed_at < $1
	`

	tag, err := s.exec(ctx).Exec(ctx, query, time.Now().UTC().Add(-lease))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale queue items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Release возвращает забранные, но не отправленные элементы
func (s *Storage) Release(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	query := `
		UPDATE marketplace.sync_queue q
		SET status = ` + returnToPending + `, claimed_at = NULL, attempts = GREATEST(q.attempts - 1, 0), updated_at = now()
		WHERE q.id = ANY($1) AND q.status = 'processing'
	`

	if _, err := s.exec(ctx).Exec(ctx, query, itemIDs); err != nil {
		return fmt.Errorf("failed to release queue items: %w", err)
	}
	return nil
}

// MarkDone помечает элемент отправленным
func (s *Storage) MarkDone(ctx context.Context, itemID string) error {
	tag, err := s.exec(ctx).Exec(ctx, `
		UPDATE marketplace.sync_queue
		SET status = 'done', last_error = '', last_attempt_at = now(), claimed_at = NULL, updated_at = now()
		WHERE id = $1`, itemID)
	if err != nil {
		return persistenceErr("mark queue item done", err)
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrNotFound
	}
	return nil
}

// MarkFailed записывает ошибку и возвращает элемент в ожидание
func (s *Storage) MarkFailed(ctx context.Context, itemID, errText string, at time.Time) (models.QueueStatus, error) {
	query := `
		UPDATE marketplace.sync_queue q
		SET status = ` + returnToPending + `, last_error = $2, last_attempt_at = $3, claimed_at = NULL, updated_at = now()
		WHERE q.id = $1
		RETURNING q.status
	`

	var status models.QueueStatus
	if err := s.exec(ctx).QueryRow(ctx, query, itemID, errText, at).Scan(&status); err != nil {
		if isNoRows(err) {
			return "", utils.ErrNotFound
		}
		return "", persistenceErr("mark queue item failed", err)
	}
	return status, nil
}

// ListQueue возвращает элементы очереди связи (для диагностики и API)
func (s *Storage) ListQueue(ctx context.Context, tenantID, linkID string) ([]*models.SyncQueueItem, error) {
	rows, err := s.exec(ctx).Query(ctx, `
		SELECT `+queueColumns+`
		FROM marketplace.sync_queue
		WHERE tenant_id = $1 AND product_link_id = $2
		ORDER BY created_at`, tenantID, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	return collectQueueItems(rows)
}
