package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/tx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation код ошибки PostgreSQL при нарушении уникальности
const pgUniqueViolation = "23505"

// Storage хранилище синхронизации на PostgreSQL.
// Реализует репозитории аккаунтов, заказов, товаров, связей и очереди.
type Storage struct {
	pool *pgxpool.Pool
}

var _ interfaces.StoragePort = (*Storage)(nil)

// NewPostgresStorage создает пул соединений и проверяет доступность БД.
// poolSize 0 оставляет размер пула pgx по умолчанию.
func NewPostgresStorage(ctx context.Context, connectionString string, poolSize int) (*Storage, error) {
	if poolSize < 0 {
		return nil, utils.ErrStorageInvalidPoolSize
	}

	poolConfig, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if poolSize > 0 {
		poolConfig.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s, err := NewPostgresStorageWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStorageWithPool создает хранилище поверх существующего пула
func NewPostgresStorageWithPool(ctx context.Context, pool *pgxpool.Pool) (*Storage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Storage{pool: pool}, nil
}

// Pool возвращает пул соединений (нужен менеджеру транзакций)
func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping проверяет доступность БД
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close закрывает пул соединений
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// exec возвращает транзакцию из контекста или пул
func (s *Storage) exec(ctx context.Context) tx.Executor {
	return tx.ExecutorFrom(ctx, s.pool)
}

// persistenceErr оборачивает ошибку драйвера в utils.ErrPersistence
func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", utils.ErrPersistence, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
