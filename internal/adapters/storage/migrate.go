package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator применяет встроенные миграции схемы marketplace
type Migrator struct {
	migrate *migrate.Migrate
	logger  interfaces.LoggerPort
}

// NewMigrator создает мигратор для строки подключения (формат pgx: URL или key=value)
func NewMigrator(connectionString string, logger interfaces.LoggerPort) (*Migrator, error) {
	connConfig, err := pgx.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create pgx migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Migrator{migrate: m, logger: logger}, nil
}

// Up применяет все новые миграции
func (m *Migrator) Up() error {
	m.logger.Info("Применение миграций")

	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("Новых миграций нет")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("Миграции применены",
		interfaces.LogField{Key: "version", Value: version},
		interfaces.LogField{Key: "dirty", Value: dirty},
	)
	return nil
}

// Down откатывает все миграции
func (m *Migrator) Down() error {
	m.logger.Warn("Откат всех миграций")

	err := m.migrate.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Steps применяет n миграций (отрицательное n - откат)
func (m *Migrator) Steps(n int) error {
	err := m.migrate.Steps(n)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return nil
}

// Version возвращает текущую версию схемы; 0 если миграции не применялись
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force выставляет версию без выполнения миграций (для грязного состояния)
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Принудительная установка версии миграций",
		interfaces.LogField{Key: "version", Value: version},
	)
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Close освобождает источник миграций и соединение с БД
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}
