package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/config"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/metrics"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/app"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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
	log.Info("Инициализация воркера",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName + "-worker"},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Ошибка инициализации воркера", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.Port, application, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	runPeriodic(ctx, &wg, log, "sync_all", cfg.Sync.Interval, func(ctx context.Context) error {
		summary, err := application.Ingestion.SyncAllActive(ctx)
		if err != nil {
			return err
		}
		log.Info("Плановая синхронизация завершена",
			interfaces.LogField{Key: "accounts", Value: len(summary.Accounts)},
			interfaces.LogField{Key: "accounts_failed", Value: summary.AccountsFailed},
			interfaces.LogField{Key: "orders_processed", Value: summary.OrdersProcessed},
		)
		return nil
	})

	runPeriodic(ctx, &wg, log, "price_push", cfg.PricePush.Interval, func(ctx context.Context) error {
		result, err := application.Pusher.RunPass(ctx, "")
		if err != nil {
			return err
		}
		if result.Processed > 0 || result.Failed > 0 {
			log.Info("Проход отправки цен и остатков завершен",
				interfaces.LogField{Key: "processed", Value: result.Processed},
				interfaces.LogField{Key: "failed", Value: result.Failed},
			)
		}
		return nil
	})

	if application.Broker != nil {
		subscribeToCommands(ctx, &wg, application, log)
	} else {
		log.Warn("Брокер выключен, команды воркеру не принимаются")
	}

	log.Info("Воркер запущен и готов к обработке сообщений")

	<-quit
	log.Info("Получен сигнал завершения, выполняется graceful shutdown...")
	cancel()
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Ошибка остановки HTTP сервера метрик", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		shutdownCancel()
	}

	_ = application.Close()
	log.Info("Воркер корректно завершил работу")
}

// startMetricsServer отдает /metrics и /health на отдельном порту
func startMetricsServer(port int, application *app.App, log interfaces.LoggerPort) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := application.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Запуск HTTP сервера для метрик", interfaces.LogField{Key: "addr", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Ошибка запуска HTTP сервера для метрик",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()
	return server
}

// runPeriodic запускает task каждые interval до отмены ctx; interval <= 0 выключает задачу.
// Следующий запуск не начинается, пока не закончился предыдущий.
func runPeriodic(ctx context.Context, wg *sync.WaitGroup, log interfaces.LoggerPort, name string, interval time.Duration, task func(ctx context.Context) error) {
	if interval <= 0 {
		log.Info("Фоновая задача выключена", interfaces.LogField{Key: "task", Value: name})
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info("Фоновая задача запущена",
			interfaces.LogField{Key: "task", Value: name},
			interfaces.LogField{Key: "interval", Value: interval.String()},
		)

		for {
			select {
			case <-ctx.Done():
				log.Info("Фоновая задача остановлена", interfaces.LogField{Key: "task", Value: name})
				return
			case <-ticker.C:
				start := time.Now()
				if err := task(ctx); err != nil {
					metrics.WorkerPasses.WithLabelValues(name, "error").Inc()
					log.Error("Ошибка фоновой задачи",
						interfaces.LogField{Key: "task", Value: name},
						interfaces.LogField{Key: "error", Value: err.Error()},
					)
					continue
				}
				metrics.WorkerPasses.WithLabelValues(name, "success").Inc()
				log.Debug("Фоновая задача выполнена",
					interfaces.LogField{Key: "task", Value: name},
					interfaces.LogField{Key: "duration", Value: time.Since(start).String()},
				)
			}
		}
	}()
}

// subscribeToCommands подписка на команды sync_account и price_push
func subscribeToCommands(ctx context.Context, wg *sync.WaitGroup, application *app.App, log interfaces.LoggerPort) {
	topic := application.Config.Messaging.CommandsTopic
	handler := app.CommandHandler(application.Ingestion, application.Pusher, log)

	wg.Add(1)
	go func() {
		defer wg.Done()

		unsubscribe, err := application.Broker.Subscribe(ctx, topic, handler)
		if err != nil {
			log.Error("Ошибка подписки на команды",
				interfaces.LogField{Key: "topic", Value: topic},
				interfaces.LogField{Key: "error", Value: err.Error()})
			return
		}
		defer func() {
			if err := unsubscribe(); err != nil {
				log.Warn("Ошибка отписки от команд", interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()

		log.Info("Подписка на команды установлена", interfaces.LogField{Key: "topic", Value: topic})

		<-ctx.Done()
		log.Info("Отмена подписки на команды")
	}()
}
