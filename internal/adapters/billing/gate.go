package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/patrickmn/go-cache"
)

const cacheKey = "billing:can_sync"

// ErrBillingUnavailable сервис биллинга не ответил
var ErrBillingUnavailable = errors.New("billing unavailable")

// Config параметры клиента сервиса биллинга
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	// FailOpen разрешает синхронизацию, если биллинг недоступен
	FailOpen bool
	// Client например клиент с сервисным токеном Keycloak; nil - обычный http.Client
	Client *http.Client
}

// HTTPGate спрашивает сервис биллинга, разрешена ли арендатору синхронизация.
// Ответы кэшируются в памяти процесса и, если передан, в общем кэше.
type HTTPGate struct {
	client   *http.Client
	baseURL  string
	ttl      time.Duration
	failOpen bool

	local  *cache.Cache
	shared interfaces.CachePort
	logger interfaces.LoggerPort
}

type decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// NewHTTPGate создает клиента; shared может быть nil
func NewHTTPGate(cfg Config, shared interfaces.CachePort, logger interfaces.LoggerPort) *HTTPGate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPGate{
		client:   client,
		baseURL:  cfg.BaseURL,
		ttl:      cfg.CacheTTL,
		failOpen: cfg.FailOpen,
		local:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		shared:   shared,
		logger:   logger,
	}
}

// CanSync возвращает решение биллинга для арендатора
func (g *HTTPGate) CanSync(ctx context.Context, tenantID string) (bool, error) {
	if v, found := g.local.Get(tenantID); found {
		return v.(bool), nil
	}

	if g.shared != nil {
		if data, err := g.shared.GetWithTenant(ctx, cacheKey, tenantID); err == nil {
			allowed, parseErr := strconv.ParseBool(string(data))
			if parseErr == nil {
				g.local.Set(tenantID, allowed, cache.DefaultExpiration)
				return allowed, nil
			}
		}
	}

	d, err := g.fetch(ctx, tenantID)
	if err != nil {
		if g.failOpen {
			g.logger.WarnWithContext(ctx, "Биллинг недоступен, синхронизация разрешена",
				interfaces.LogField{Key: "tenant_id", Value: tenantID},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			return true, nil
		}
		return false, fmt.Errorf("%w: %w", ErrBillingUnavailable, err)
	}

	if !d.Allowed {
		g.logger.InfoWithContext(ctx, "Биллинг запретил синхронизацию",
			interfaces.LogField{Key: "tenant_id", Value: tenantID},
			interfaces.LogField{Key: "reason", Value: d.Reason},
		)
	}

	g.local.Set(tenantID, d.Allowed, cache.DefaultExpiration)
	if g.shared != nil {
		if err := g.shared.SetWithTenant(ctx, cacheKey, []byte(strconv.FormatBool(d.Allowed)), tenantID, g.ttl); err != nil {
			g.logger.WarnWithContext(ctx, "Не удалось сохранить решение биллинга в кэш",
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}
	return d.Allowed, nil
}

func (g *HTTPGate) fetch(ctx context.Context, tenantID string) (*decision, error) {
	endpoint := fmt.Sprintf("%s/api/v1/tenants/%s/sync-allowed", g.baseURL, url.PathEscape(tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build billing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call billing: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read billing response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// неизвестный биллингу арендатор не имеет подписки
		return &decision{Allowed: false, Reason: "tenant not found"}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("billing returned status %d", resp.StatusCode)
	}

	var d decision
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("failed to decode billing response: %w", err)
	}
	return &d, nil
}

// Invalidate сбрасывает закэшированное решение, например после смены тарифа
func (g *HTTPGate) Invalidate(ctx context.Context, tenantID string) error {
	g.local.Delete(tenantID)
	if g.shared == nil {
		return nil
	}
	if err := g.shared.Delete(ctx, fmt.Sprintf("tenant:%s:%s", tenantID, cacheKey)); err != nil {
		return fmt.Errorf("failed to invalidate billing cache: %w", err)
	}
	return nil
}

// AllowAll пропускает всех арендаторов (биллинг выключен)
type AllowAll struct{}

func (AllowAll) CanSync(context.Context, string) (bool, error) { return true, nil }
