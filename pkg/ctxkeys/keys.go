package ctxkeys

import "context"

// key приватный тип ключей контекста, чтобы избежать коллизий
type key string

const (
	RequestID key = "request_id"
	TraceID   key = "trace_id"
	TenantID  key = "tenant_id"
	UserID    key = "user_id"
	Principal key = "principal"
	AccountID key = "account_id"
	Platform  key = "platform"
)

// logged ключи, которые логгер переносит из контекста в запись, в порядке вывода
var logged = []key{RequestID, TraceID, TenantID, UserID, AccountID, Platform}

// WithTenant возвращает контекст с ID арендатора
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantID, tenantID)
}

// Tenant извлекает ID арендатора из контекста
func Tenant(ctx context.Context) string {
	v, _ := ctx.Value(TenantID).(string)
	return v
}

// WithAccount помечает контекст аккаунтом маркетплейса, с которым идет работа
func WithAccount(ctx context.Context, accountID, platform string) context.Context {
	ctx = context.WithValue(ctx, AccountID, accountID)
	return context.WithValue(ctx, Platform, platform)
}

// String извлекает строковое значение по ключу
func String(ctx context.Context, k key) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// EachLogged вызывает fn для каждого непустого сквозного идентификатора в контексте
func EachLogged(ctx context.Context, fn func(name, value string)) {
	for _, k := range logged {
		if v := String(ctx, k); v != "" {
			fn(string(k), v)
		}
	}
}
