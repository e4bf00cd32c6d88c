package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/metrics"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrCacheMiss ключ отсутствует в кэше
var ErrCacheMiss = errors.New("cache miss")

// unlockScript удаляет ключ блокировки, только если он все еще принадлежит владельцу
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache кэш и распределенные блокировки на Redis
type RedisCache struct {
	client *redis.Client
	// tokens значения захваченных этим процессом блокировок
	tokens sync.Map
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(ctx context.Context, host string, port int, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

var _ interfaces.CachePort = (*RedisCache)(nil)

func buildKey(key, tenantID string) string {
	if tenantID != "" {
		return fmt.Sprintf("tenant:%s:%s", tenantID, key)
	}
	return key
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperations.WithLabelValues("get", "miss").Inc()
			return nil, ErrCacheMiss
		}
		metrics.CacheOperations.WithLabelValues("get", "error").Inc()
		return nil, err
	}
	metrics.CacheOperations.WithLabelValues("get", "hit").Inc()
	return val, nil
}

func (r *RedisCache) GetWithTenant(ctx context.Context, key string, tenantID string) ([]byte, error) {
	return r.Get(ctx, buildKey(key, tenantID))
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisCache) SetWithTenant(ctx context.Context, key string, value []byte, tenantID string, expiration time.Duration) error {
	return r.Set(ctx, buildKey(key, tenantID), value, expiration)
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// LockWithTenant захватывает блокировку через SET NX с TTL.
// Блокировка истекает сама, если процесс упал, не освободив ее.
func (r *RedisCache) LockWithTenant(ctx context.Context, key string, tenantID string, expiration time.Duration) (bool, error) {
	fullKey := "lock:" + buildKey(key, tenantID)
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, fullKey, token, expiration).Result()
	if err != nil {
		metrics.CacheOperations.WithLabelValues("lock", "error").Inc()
		return false, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		metrics.CacheOperations.WithLabelValues("lock", "busy").Inc()
		return false, nil
	}
	metrics.CacheOperations.WithLabelValues("lock", "acquired").Inc()
	r.tokens.Store(fullKey, token)
	return true, nil
}

// UnlockWithTenant освобождает блокировку, захваченную этим процессом
func (r *RedisCache) UnlockWithTenant(ctx context.Context, key string, tenantID string) error {
	fullKey := "lock:" + buildKey(key, tenantID)

	token, ok := r.tokens.LoadAndDelete(fullKey)
	if !ok {
		return nil
	}
	if err := unlockScript.Run(ctx, r.client, []string{fullKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock %s: %w", fullKey, err)
	}
	return nil
}

// Ping проверяет доступность Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
