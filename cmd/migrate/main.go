package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/athebyme/gomarket-platform/marketplace-service/config"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/logger"
	postgres "github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/app"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
)

func main() {
	var (
		configName string
		logLevel   string
	)
	flag.StringVar(&configName, "config", "", "Имя файла конфигурации без расширения (по умолчанию config)")
	flag.StringVar(&logLevel, "log-level", "info", "Уровень логирования (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.NewZapLogger(logLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(configName)
	if err != nil {
		log.Fatal("Ошибка загрузки конфигурации", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	dsn, err := app.ConnectionString(cfg)
	if err != nil {
		log.Fatal("Ошибка генерации строки подключения к PostgreSQL",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	m, err := postgres.NewMigrator(dsn, log)
	if err != nil {
		log.Fatal("Ошибка инициализации мигратора", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	err = run(m, args)
	if cerr := m.Close(); cerr != nil {
		log.Warn("Ошибка закрытия мигратора", interfaces.LogField{Key: "error", Value: cerr.Error()})
	}
	if err != nil {
		log.Fatal("Ошибка выполнения миграции",
			interfaces.LogField{Key: "command", Value: args[0]},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
}

func run(m *postgres.Migrator, args []string) error {
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		n, err := intArg(args, "steps")
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "force":
		v, err := intArg(args, "force")
		if err != nil {
			return err
		}
		return m.Force(v)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func intArg(args []string, command string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires an integer argument", command)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid %s argument %q: %w", command, args[1], err)
	}
	return n, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Использование: migrate [флаги] <команда> [аргументы]

Команды:
  up             применить все новые миграции
  down           откатить все миграции
  steps N        применить (N > 0) или откатить (N < 0) N миграций
  version        показать текущую версию схемы
  force V        принудительно установить версию V (после неудачной миграции)

Флаги:
`)
	flag.PrintDefaults()
}
