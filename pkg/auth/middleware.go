package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, Code: status, Message: message})
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware промежуточное ПО для проверки токенов.
// Арендатор берется только из токена, заголовок X-Tenant-ID игнорируется.
func AuthMiddleware(authenticator interfaces.AuthPort, logger interfaces.LoggerPort) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization header is required")
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				logger.WarnWithContext(r.Context(), "Недействительный токен",
					interfaces.LogField{Key: "error", Value: err.Error()})
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPrincipal кладет пользователя и его арендатора в контекст
func WithPrincipal(ctx context.Context, principal *interfaces.Principal) context.Context {
	ctx = context.WithValue(ctx, ctxkeys.Principal, principal)
	ctx = context.WithValue(ctx, ctxkeys.UserID, principal.UserID)
	return ctxkeys.WithTenant(ctx, principal.TenantID)
}

// PrincipalFrom возвращает пользователя из контекста
func PrincipalFrom(ctx context.Context) (*interfaces.Principal, bool) {
	p, ok := ctx.Value(ctxkeys.Principal).(*interfaces.Principal)
	return p, ok && p != nil
}

// RequireAnyRole проверяет наличие хотя бы одной роли из списка.
// Без аутентификации (пользователя нет в контексте) проверка пропускается.
func RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if ok && len(roles) > 0 && !principal.HasAnyRole(roles...) {
				writeError(w, http.StatusForbidden, "forbidden", "Недостаточно прав")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
