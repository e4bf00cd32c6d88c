package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/config"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/api"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/app"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
)

// @title Marketplace Service API
// @version 1.0
// @description Синхронизация заказов, цен и остатков с маркетплейсами
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	log.Info("Инициализация сервиса",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Ошибка инициализации сервиса", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	testCtx, testCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := application.Health(testCtx); err != nil {
		testCancel()
		log.Fatal("Ошибка подключения к PostgreSQL",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	testCancel()
	log.Info("Соединение с PostgreSQL проверено")

	router := api.SetupRouter(api.RouterDeps{
		Sync:               application.Ingestion,
		Pusher:             application.Pusher,
		Orders:             application.Storage,
		Matcher:            application.Matching,
		Catalog:            application.Catalog,
		Auth:               application.Auth,
		Health:             application.Health,
		Logger:             log,
		CORSAllowedOrigins: cfg.Security.CORSAllowOrigins,
		RequestTimeout:     cfg.Server.RequestTimeout,
		MutationRoles:      cfg.Security.MutationRoles,
	})
	log.Info("Маршрутизатор настроен")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Сервер запущен", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Ошибка запуска сервера", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Ошибка при graceful shutdown", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		log.Info("HTTP сервер остановлен")

		cancel()
		log.Info("Закрытие соединений с зависимостями...")
		_ = application.Close()

		close(done)
	}()

	<-done
	log.Info("Сервер корректно завершил работу")
}
