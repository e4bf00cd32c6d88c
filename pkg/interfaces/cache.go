package interfaces

import (
	"context"
	"time"
)

// CachePort определяет интерфейс для работы с системой кэширования
// Реализация может использовать Redis или любую другую систему кэширования
type CachePort interface {
	// Get получает значение из кэша по ключу
	Get(ctx context.Context, key string) ([]byte, error)

	// GetWithTenant получает значение из кэша по ключу с учетом ID арендатора
	GetWithTenant(ctx context.Context, key string, tenantID string) ([]byte, error)

	// Set сохраняет значение в кэше с указанным сроком действия
	// Если expiration равно 0, срок действия не устанавливается
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// SetWithTenant сохраняет значение в кэше с учетом ID арендатора
	SetWithTenant(ctx context.Context, key string, value []byte, tenantID string, expiration time.Duration) error

	// Delete удаляет значение из кэша по ключу
	Delete(ctx context.Context, key string) error

	// LockWithTenant пытается получить распределенную блокировку с учетом ID арендатора
	// Возвращает true, если блокировка получена
	LockWithTenant(ctx context.Context, key string, tenantID string, expiration time.Duration) (bool, error)

	// UnlockWithTenant освобождает блокировку
	UnlockWithTenant(ctx context.Context, key string, tenantID string) error

	// Close закрывает соединение с системой кэширования
	Close() error
}
