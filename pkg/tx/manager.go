package tx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txKeyType - ключ для хранения транзакции в контексте
type txKeyType struct{}

var txKey = txKeyType{}

// TxManager управляет жизненным циклом транзакций БД.
type TxManager interface {
	// Do выполняет fn внутри транзакции.
	// Ошибка fn откатывает транзакцию, nil фиксирует ее.
	// Вложенный вызов переиспользует уже открытую транзакцию из контекста.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Executor - общий интерфейс pgx.Tx и *pgxpool.Pool
type Executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type pgxTxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager создает новый менеджер транзакций.
func NewTxManager(pool *pgxpool.Pool) TxManager {
	return &pgxTxManager{pool: pool}
}

func (m *pgxTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := GetTxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx.Begin failed: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	// на случай паники внутри fn; после Commit вернет ErrTxClosed
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(txCtx); err != nil {
		if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("tx.Rollback failed: %w", rollbackErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx.Commit failed: %w", err)
	}

	return nil
}

// GetTxFromContext извлекает транзакцию из контекста.
func GetTxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// ExecutorFrom возвращает транзакцию из контекста, если она есть, иначе пул
func ExecutorFrom(ctx context.Context, pool *pgxpool.Pool) Executor {
	if tx, ok := GetTxFromContext(ctx); ok {
		return tx
	}
	return pool
}
