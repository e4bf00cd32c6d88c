package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/metrics"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: kind, Code: status, Message: message})
}

// correlationHeaders заголовки, которые попадают в контекст и возвращаются клиенту
var correlationHeaders = []struct {
	header string
	key    any
}{
	{"X-Request-ID", ctxkeys.RequestID},
	{"X-Trace-ID", ctxkeys.TraceID},
}

// Correlation кладет request_id и trace_id в контекст.
// request_id берется из chi RequestID, если он стоит раньше в цепочке.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for _, c := range correlationHeaders {
			value := r.Header.Get(c.header)
			if c.key == ctxkeys.RequestID {
				if id := chimiddleware.GetReqID(ctx); id != "" {
					value = id
				}
			}
			if value == "" {
				value = uuid.NewString()
			}
			ctx = context.WithValue(ctx, c.key, value)
			w.Header().Set(c.header, value)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// routePattern шаблон маршрута chi вместо сырого пути, чтобы не плодить метки по идентификаторам
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// Observe пишет access-лог и HTTP метрики Prometheus
func Observe(logger interfaces.LoggerPort) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.HTTPActiveRequests.Inc()
			defer metrics.HTTPActiveRequests.Dec()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			path := routePattern(r)
			code := strconv.Itoa(status)

			metrics.HTTPDurations.WithLabelValues(path, r.Method, code).Observe(elapsed.Seconds())
			metrics.HTTPRequests.WithLabelValues(path, r.Method, code).Inc()

			fields := []interface{}{
				interfaces.LogField{Key: "method", Value: r.Method},
				interfaces.LogField{Key: "path", Value: r.URL.Path},
				interfaces.LogField{Key: "status", Value: status},
				interfaces.LogField{Key: "bytes", Value: ww.BytesWritten()},
				interfaces.LogField{Key: "duration", Value: elapsed.String()},
			}
			if status >= http.StatusInternalServerError {
				logger.WarnWithContext(r.Context(), "Запрос завершился ошибкой", fields...)
				return
			}
			logger.InfoWithContext(r.Context(), "Запрос обработан", fields...)
		})
	}
}

// Recoverer превращает панику обработчика в 500
func Recoverer(logger interfaces.LoggerPort) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logger.ErrorWithContext(r.Context(), "Паника при обработке запроса",
					interfaces.LogField{Key: "error", Value: rvr},
					interfaces.LogField{Key: "path", Value: r.URL.Path},
					interfaces.LogField{Key: "stack", Value: string(debug.Stack())},
				)
				writeError(w, r, http.StatusInternalServerError, "internal_error", "")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Tenant берет арендатора из X-Tenant-ID, если аутентификация его еще не установила
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.Tenant(r.Context()) != "" {
			next.ServeHTTP(w, r)
			return
		}

		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			writeError(w, r, http.StatusBadRequest, "bad_request", "X-Tenant-ID header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctxkeys.WithTenant(r.Context(), tenantID)))
	})
}

// Timeout ограничивает время обработки запроса через контекст.
// Коннекторы прерываются по ctx.Done().
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

const corsAllowHeaders = "Accept, Content-Type, Authorization, X-Tenant-ID, X-Request-ID, X-Trace-ID"

// CORS отвечает на preflight и выставляет заголовки для разрешенных источников.
// "*" разрешает любой источник.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	_, anyOrigin := origins["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Add("Vary", "Origin")
				if _, ok := origins[origin]; ok || anyOrigin {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders базовые заголовки безопасности
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
