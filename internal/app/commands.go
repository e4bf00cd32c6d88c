package app

import (
	"context"
	"errors"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/metrics"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
)

// AccountSyncer синхронизация заказов одного аккаунта
type AccountSyncer interface {
	SyncAccount(ctx context.Context, tenantID, accountID string, window models.TimeRange) (*models.SyncResult, error)
}

// PassRunner один проход отправки цен и остатков
type PassRunner interface {
	RunPass(ctx context.Context, tenantID string) (*models.PricePushResult, error)
}

// CommandHandler обработчик команд воркера из топика команд.
// Ошибка возвращается только для сбоев, которые имеет смысл повторить:
// недоступность хранилища или площадки. Некорректные команды и отказы бизнес-правил подтверждаются.
func CommandHandler(syncer AccountSyncer, pusher PassRunner, logger interfaces.LoggerPort) interfaces.MessageHandler {
	return func(ctx context.Context, msg *interfaces.Message) error {
		start := time.Now()

		cmd, err := messaging.ParseCommand(msg.Value)
		if err != nil {
			logger.WarnWithContext(ctx, "Некорректная команда",
				interfaces.LogField{Key: "message_id", Value: msg.ID},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			metrics.MessagesProcessed.WithLabelValues("unknown", "invalid").Inc()
			return nil
		}

		tenantID := cmd.TenantID
		if tenantID == "" {
			tenantID = msg.TenantID
		}
		ctx = ctxkeys.WithTenant(ctx, tenantID)

		logger.InfoWithContext(ctx, "Получена команда",
			interfaces.LogField{Key: "message_id", Value: msg.ID},
			interfaces.LogField{Key: "type", Value: cmd.Type},
		)

		switch cmd.Type {
		case messaging.CommandSyncAccount:
			window, werr := commandWindow(cmd)
			if werr != nil {
				err = werr
				break
			}
			var result *models.SyncResult
			result, err = syncer.SyncAccount(ctx, tenantID, cmd.AccountID, window)
			if err == nil {
				logger.InfoWithContext(ctx, "Синхронизация по команде завершена",
					interfaces.LogField{Key: "account_id", Value: cmd.AccountID},
					interfaces.LogField{Key: "orders_processed", Value: result.OrdersProcessed},
					interfaces.LogField{Key: "success", Value: result.Success},
				)
			}
		case messaging.CommandPricePush:
			var result *models.PricePushResult
			result, err = pusher.RunPass(ctx, tenantID)
			if err == nil {
				logger.InfoWithContext(ctx, "Проход отправки цен по команде завершен",
					interfaces.LogField{Key: "processed", Value: result.Processed},
					interfaces.LogField{Key: "failed", Value: result.Failed},
				)
			}
		}

		metrics.MessageDuration.WithLabelValues(cmd.Type).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.MessagesProcessed.WithLabelValues(cmd.Type, "success").Inc()
			return nil
		}

		logger.ErrorWithContext(ctx, "Ошибка обработки команды",
			interfaces.LogField{Key: "type", Value: cmd.Type},
			interfaces.LogField{Key: "kind", Value: services.FailureKind(err)},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		if !retryable(err) {
			metrics.MessagesProcessed.WithLabelValues(cmd.Type, "rejected").Inc()
			return nil
		}
		metrics.MessagesProcessed.WithLabelValues(cmd.Type, "error").Inc()
		return err
	}
}

// commandWindow окно синхронизации из команды: обе границы или ни одной
func commandWindow(cmd *messaging.Command) (models.TimeRange, error) {
	if cmd.From == nil && cmd.To == nil {
		return models.TimeRange{}, nil
	}
	if cmd.From == nil || cmd.To == nil {
		return models.TimeRange{}, models.ErrEmptyRange
	}
	window := models.TimeRange{From: *cmd.From, To: *cmd.To}
	if err := window.Validate(); err != nil {
		return models.TimeRange{}, err
	}
	return window, nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, utils.ErrAccountInactive),
		errors.Is(err, utils.ErrSyncNotAllowed),
		errors.Is(err, utils.ErrSyncInProgress),
		errors.Is(err, utils.ErrNotFound),
		errors.Is(err, models.ErrEmptyRange):
		return false
	}
	return true
}
