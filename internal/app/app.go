package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/config"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/billing"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors/ciceksepeti"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors/n11"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors/trendyol"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors/woocommerce"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/metrics"
	postgres "github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/security"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/auth"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/tx"
)

// App собранные зависимости сервиса, общие для API и воркера
type App struct {
	Config *config.Config
	Logger interfaces.LoggerPort

	Storage  *postgres.Storage
	Cache    interfaces.CachePort
	// db то же хранилище через порт жизненного цикла: проверка доступности и закрытие
	db interfaces.StoragePort
	Broker   interfaces.MessagingPort
	Registry *connectors.Registry
	Auth     interfaces.AuthPort

	Ingestion *services.IngestionService
	Matching  *services.MatchingService
	Catalog   *services.CatalogService
	Pusher    *services.PricePushWorker

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// ConnectionString строка подключения к PostgreSQL из конфигурации
func ConnectionString(cfg *config.Config) (string, error) {
	return utils.GenerateConnectionString(utils.ConnectionParams{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		SSLMode:  cfg.Postgres.SSLMode,
		Timeout:  cfg.Postgres.Timeout,
		AppName:  cfg.AppName,
	})
}

// NewRegistry регистрирует коннекторы всех площадок
func NewRegistry(cfg *config.Config) *connectors.Registry {
	timeout := cfg.Sync.RequestTimeout
	return connectors.NewRegistry(
		trendyol.NewConnector(cfg.Connectors.TrendyolBaseURL, timeout),
		woocommerce.NewConnector(timeout),
		n11.NewConnector(cfg.Connectors.N11BaseURL, timeout),
		ciceksepeti.NewConnector(cfg.Connectors.CiceksepetiBaseURL, timeout),
	)
}

// NewBroker создает клиента брокера по messaging.driver; для "none" возвращает nil
func NewBroker(ctx context.Context, cfg *config.Config, log interfaces.LoggerPort) (interfaces.MessagingPort, error) {
	switch cfg.Messaging.Driver {
	case "kafka":
		k, err := messaging.NewKafkaMessaging(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
		if err != nil {
			return nil, err
		}
		for _, topic := range []string{cfg.Messaging.EventsTopic, cfg.Messaging.CommandsTopic} {
			if err := k.CreateTopic(ctx, topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
				log.Warn("Не удалось создать топик Kafka",
					interfaces.LogField{Key: "topic", Value: topic},
					interfaces.LogField{Key: "error", Value: err.Error()},
				)
			}
		}
		return k, nil
	case "rabbitmq":
		r, err := messaging.NewRabbitMQMessaging(cfg.RabbitMQ.URL, cfg.RabbitMQ.Prefetch, log)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownMessagingDriver, cfg.Messaging.Driver)
	}
}

// New подключается к зависимостям и собирает доменные сервисы.
// При ошибке уже открытые соединения закрываются.
func New(ctx context.Context, cfg *config.Config, log interfaces.LoggerPort) (_ *App, err error) {
	a := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	dsn, err := ConnectionString(cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации строки подключения базы: %w", err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := migrateUp(dsn, log); err != nil {
			return nil, err
		}
	}

	storage, err := postgres.NewPostgresStorage(ctx, dsn, cfg.Postgres.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}
	a.Storage, a.db = storage, storage
	a.addCloser("postgres", a.db.Close)
	log.Info("Хранилище инициализировано")

	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации кэша: %w", err)
		}
		a.Cache = redisCache
		a.addCloser("redis", redisCache.Close)
		log.Info("Кэш инициализирован")
	} else {
		log.Warn("Redis выключен: блокировка аккаунтов при синхронизации не используется")
	}

	broker, err := NewBroker(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации системы обмена сообщениями: %w", err)
	}
	events := services.NopPublisher()
	if broker != nil {
		a.Broker = broker
		a.addCloser("broker", a.Broker.Close)
		events = messaging.NewEventPublisher(a.Broker, cfg.Messaging.EventsTopic)
		log.Info("Система обмена сообщениями инициализирована",
			interfaces.LogField{Key: "driver", Value: cfg.Messaging.Driver})
	}

	keycloak, err := a.setupAuth(ctx)
	if err != nil {
		return nil, err
	}

	gate := a.billingGate(ctx, keycloak)

	a.Registry = NewRegistry(cfg)
	txManager := tx.NewTxManager(a.Storage.Pool())
	recorder := metrics.NewRecorder()

	a.Ingestion = services.NewIngestionService(services.IngestionDeps{
		Accounts: a.Storage,
		Orders:   a.Storage,
		Registry: a.Registry,
		Chunker:  services.NewRangeChunker(cfg.Sync.ChunkTimeout),
		Billing:  gate,
		Cache:    a.Cache,
		Events:   events,
		Metrics:  recorder,
		Logger:   log,
	}, services.IngestionConfig{
		DefaultLookback:    cfg.Sync.DefaultLookback,
		LockTTL:            cfg.Sync.LockTTL,
		AccountConcurrency: cfg.Sync.AccountConcurrency,
	})
	a.Matching = services.NewMatchingService(a.Storage, a.Storage, a.Storage, a.Registry, log)
	a.Catalog = services.NewCatalogService(a.Storage, a.Storage, a.Storage, txManager, log)
	a.Pusher = services.NewPricePushWorker(a.Storage, a.Storage, a.Storage, a.Registry, txManager, events, recorder, log,
		services.PricePushConfig{
			BatchSize:   cfg.PricePush.BatchSize,
			Lease:       cfg.PricePush.Lease,
			CallTimeout: cfg.PricePush.CallTimeout,
		})

	log.Info("Сервисы синхронизации инициализированы",
		interfaces.LogField{Key: "platforms", Value: a.Registry.Platforms()})
	return a, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// setupAuth выбирает способ аутентификации; клиент Keycloak возвращается и для сервисных вызовов
func (a *App) setupAuth(ctx context.Context) (*auth.KeycloakClient, error) {
	cfg := a.Config
	switch cfg.Security.AuthMode {
	case "keycloak":
		kc, err := auth.NewKeycloakClient(ctx, cfg.Keycloak.GetKeycloakConfig())
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации Keycloak: %w", err)
		}
		a.Auth = kc
		return kc, nil
	case "jwt":
		publicKey, err := os.ReadFile(cfg.Security.JWTPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT public key: %w", err)
		}
		// приватный ключ нужен только для выпуска токенов, API достаточно публичного
		var privateKey []byte
		if cfg.Security.JWTPrivateKeyFile != "" {
			privateKey, err = os.ReadFile(cfg.Security.JWTPrivateKeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read JWT private key: %w", err)
			}
		}
		m, err := security.NewJWTManager(privateKey, publicKey, cfg.Security.JWTExpiration, cfg.Security.JWTIssuer)
		if err != nil {
			return nil, err
		}
		a.Auth = m
		return nil, nil
	default:
		a.Logger.Warn("Аутентификация выключена, арендатор берется из X-Tenant-ID")
		return nil, nil
	}
}

func (a *App) billingGate(ctx context.Context, kc *auth.KeycloakClient) services.BillingGate {
	cfg := a.Config
	if !cfg.Billing.Enabled {
		return billing.AllowAll{}
	}

	gateCfg := billing.Config{
		BaseURL:  cfg.Billing.BaseURL,
		Timeout:  cfg.Billing.Timeout,
		CacheTTL: cfg.Billing.CacheTTL,
		FailOpen: cfg.Billing.FailOpen,
	}
	if kc != nil {
		gateCfg.Client = kc.ServiceClient(ctx, cfg.Billing.Timeout)
	}
	return billing.NewHTTPGate(gateCfg, a.Cache, a.Logger)
}

func migrateUp(dsn string, log interfaces.LoggerPort) error {
	m, err := postgres.NewMigrator(dsn, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Ошибка закрытия мигратора", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()
	return m.Up()
}

// Health проверяет доступность PostgreSQL
func (a *App) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if a.db == nil {
		return errors.New("postgres: storage is not initialized")
	}
	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

// Close закрывает соединения в порядке, обратном открытию
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.Logger.Error("Ошибка при закрытии зависимости",
				interfaces.LogField{Key: "dependency", Value: c.name},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}
