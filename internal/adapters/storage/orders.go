package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	pkgutils "github.com/athebyme/gomarket-platform/marketplace-service/pkg/utils"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, tenant_id, account_id, platform, native_order_id, status, native_status, customer_name,
	total_amount, currency, ordered_at, items, raw_payload, payload_format, synced_at, created_at, updated_at`

// orderSortColumns допустимые поля сортировки списка заказов
var orderSortColumns = map[string]string{
	"ordered_at": "ordered_at",
	"synced_at":  "synced_at",
	"total":      "total_amount",
	"created_at": "created_at",
}

func scanOrder(row pgx.Row) (*models.CanonicalOrder, error) {
	var o models.CanonicalOrder
	var items []byte
	err := row.Scan(&o.ID, &o.TenantID, &o.AccountID, &o.Platform, &o.NativeOrderID, &o.Status, &o.NativeStatus,
		&o.CustomerName, &o.TotalAmount, &o.Currency, &o.OrderedAt, &items, &o.RawPayload, &o.PayloadFormat,
		&o.SyncedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	return &o, nil
}

// UpsertOrder вставляет заказ или полностью перезаписывает существующий по (tenant, platform, native id).
// id и created_at существующей строки сохраняются.
func (s *Storage) UpsertOrder(ctx context.Context, order *models.CanonicalOrder) (bool, error) {
	query := `
		INSERT INTO marketplace.orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (tenant_id, platform, native_order_id)
		DO UPDATE SET
			account_id = EXCLUDED.account_id,
			status = EXCLUDED.status,
			native_status = EXCLUDED.native_status,
			customer_name = EXCLUDED.customer_name,
			total_amount = EXCLUDED.total_amount,
			currency = EXCLUDED.currency,
			ordered_at = EXCLUDED.ordered_at,
			items = EXCLUDED.items,
			raw_payload = EXCLUDED.raw_payload,
			payload_format = EXCLUDED.payload_format,
			synced_at = EXCLUDED.synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, (xmax = 0) AS inserted
	`

	items := order.Items
	if items == nil {
		items = []models.LineItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return false, fmt.Errorf("failed to encode order items: %w", err)
	}

	now := time.Now().UTC()
	if order.SyncedAt.IsZero() {
		order.SyncedAt = now
	}

	var inserted bool
	err = s.exec(ctx).QueryRow(ctx, query,
		order.ID, order.TenantID, order.AccountID, string(order.Platform), order.NativeOrderID,
		string(order.Status), order.NativeStatus, order.CustomerName, order.TotalAmount, order.Currency,
		order.OrderedAt.UTC(), itemsJSON, order.RawPayload, string(order.PayloadFormat), order.SyncedAt, now,
	).Scan(&order.ID, &order.CreatedAt, &inserted)
	if err != nil {
		return false, persistenceErr("upsert order "+order.NativeOrderID, err)
	}
	order.UpdatedAt = now
	return inserted, nil
}

// GetOrder возвращает заказ по естественному ключу
func (s *Storage) GetOrder(ctx context.Context, tenantID string, platform models.Platform, nativeOrderID string) (*models.CanonicalOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM marketplace.orders
		WHERE tenant_id = $1 AND platform = $2 AND native_order_id = $3
	`

	o, err := scanOrder(s.exec(ctx).QueryRow(ctx, query, tenantID, string(platform), nativeOrderID))
	if err != nil {
		if isNoRows(err) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// ListOrders возвращает страницу заказов арендатора и общее количество по фильтру
func (s *Storage) ListOrders(ctx context.Context, tenantID string, filter models.OrderFilter, pagination *pkgutils.Pagination) ([]*models.CanonicalOrder, int64, error) {
	if pagination == nil {
		pagination = pkgutils.NewPagination(1, 50, "ordered_at", true)
	}

	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.AccountID != "" {
		add("account_id = $%d", filter.AccountID)
	}
	if filter.Platform != "" {
		add("platform = $%d", string(filter.Platform))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.OrderedFrom.IsZero() {
		add("ordered_at >= $%d", filter.OrderedFrom.UTC())
	}
	if !filter.OrderedTo.IsZero() {
		add("ordered_at < $%d", filter.OrderedTo.UTC())
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	exec := s.exec(ctx)

	var total int64
	if err := exec.QueryRow(ctx, "SELECT COUNT(*) FROM marketplace.orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	if total == 0 {
		return []*models.CanonicalOrder{}, 0, nil
	}

	sortColumn, ok := orderSortColumns[pagination.SortBy]
	if !ok {
		sortColumn = "ordered_at"
	}
	args = append(args, pagination.GetLimit(), pagination.GetOffset())
	query := fmt.Sprintf(`SELECT %s FROM marketplace.orders%s ORDER BY %s %s, native_order_id LIMIT $%d OFFSET $%d`,
		orderColumns, where, sortColumn, pagination.Direction(), len(args)-1, len(args))

	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.CanonicalOrder, 0, pagination.GetLimit())
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error while iterating order rows: %w", err)
	}
	return orders, total, nil
}
