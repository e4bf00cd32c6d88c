package api

import (
	"context"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/api/middleware"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/auth"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/athebyme/gomarket-platform/marketplace-service/docs"
)

// RouterDeps зависимости HTTP слоя
type RouterDeps struct {
	Sync    handlers.SyncService
	Pusher  handlers.PricePusher
	Orders  handlers.OrderReader
	Matcher handlers.Matcher
	Catalog handlers.CatalogEditor

	// Auth nil - аутентификация выключена, арендатор берется из X-Tenant-ID
	Auth interfaces.AuthPort
	// Health проверка зависимостей для /health
	Health func(ctx context.Context) error
	Logger interfaces.LoggerPort

	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
	// MutationRoles роли, которым разрешены запуск синхронизации и изменение связей
	MutationRoles []string
}

// SetupRouter настраивает маршрутизатор
func SetupRouter(deps RouterDeps) *chi.Mux {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 2 * time.Minute
	}

	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Correlation)
	r.Use(middleware.Observe(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(middleware.CORS(deps.CORSAllowedOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(r.Context()); err != nil {
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	syncHandler := handlers.NewSyncHandler(deps.Sync, deps.Pusher, deps.Logger)
	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.Logger)
	linkHandler := handlers.NewLinkHandler(deps.Matcher, deps.Logger)
	productHandler := handlers.NewProductHandler(deps.Catalog, deps.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(deps.RequestTimeout))
		if deps.Auth != nil {
			r.Use(auth.AuthMiddleware(deps.Auth, deps.Logger))
		}
		r.Use(middleware.Tenant)

		mutate := auth.RequireAnyRole(deps.MutationRoles...)

		r.Route("/sync", func(r chi.Router) {
			r.Use(mutate)
			r.Post("/price-push", syncHandler.PricePush)
			r.Post("/{platform}", syncHandler.SyncPlatform)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{platform}/{nativeId}", orderHandler.GetOrder)
		})

		r.Route("/links", func(r chi.Router) {
			r.With(mutate).Post("/match", linkHandler.Match)
			r.With(mutate).Post("/auto-match", linkHandler.AutoMatch)
			r.With(mutate).Post("/", linkHandler.LinkManually)
			r.With(mutate).Post("/publish", linkHandler.Publish)
			r.With(mutate).Delete("/{productId}/{accountId}", linkHandler.Unmatch)
		})

		r.Route("/products/{id}", func(r chi.Router) {
			r.Use(mutate)
			r.Put("/price-stock", productHandler.UpdatePriceStock)
			r.Post("/stock-adjust", productHandler.AdjustStock)
		})
	})

	return r
}
