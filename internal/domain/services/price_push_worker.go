package services

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/tx"
)

// EventPricePushCompleted событие о завершении прохода воркера
const EventPricePushCompleted = "price_push_completed"

const (
	DefaultPushBatchSize = 5
	DefaultPushLease     = 10 * time.Minute
)

// PricePushConfig параметры воркера исходящей синхронизации
type PricePushConfig struct {
	BatchSize int
	// Lease через сколько элемент, застрявший в processing, снова становится pending
	Lease       time.Duration
	CallTimeout time.Duration
}

// PricePushWorker отправляет ожидающие изменения цены и остатка на площадки
type PricePushWorker struct {
	queue     QueueRepository
	links     LinkRepository
	accounts  AccountRepository
	registry  *connectors.Registry
	txManager tx.TxManager
	events    EventPublisher
	metrics   SyncRecorder
	logger    interfaces.LoggerPort
	cfg       PricePushConfig
	now       func() time.Time
}

// NewPricePushWorker создает воркер; events и metrics могут быть nil
func NewPricePushWorker(
	queue QueueRepository,
	links LinkRepository,
	accounts AccountRepository,
	registry *connectors.Registry,
	txManager tx.TxManager,
	events EventPublisher,
	metrics SyncRecorder,
	logger interfaces.LoggerPort,
	cfg PricePushConfig,
) *PricePushWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultPushBatchSize
	}
	if cfg.Lease <= 0 {
		cfg.Lease = DefaultPushLease
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = connectors.DefaultTimeout
	}
	if events == nil {
		events = NopPublisher()
	}
	if metrics == nil {
		metrics = NopRecorder()
	}
	return &PricePushWorker{
		queue:     queue,
		links:     links,
		accounts:  accounts,
		registry:  registry,
		txManager: txManager,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RunPass выполняет один проход: забирает до BatchSize ожидающих элементов и отправляет их по одному.
// Ошибка элемента не прерывает проход. При отмене ctx неотправленные элементы возвращаются в очередь,
// а результат содержит уже обработанные. Пустой tenantID означает все арендаторы.
func (w *PricePushWorker) RunPass(ctx context.Context, tenantID string) (*models.PricePushResult, error) {
	bg := context.WithoutCancel(ctx)

	if released, err := w.queue.ReleaseStale(ctx, w.cfg.Lease); err != nil {
		w.logger.WarnWithContext(ctx, "Не удалось вернуть просроченные элементы очереди",
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	} else if released > 0 {
		w.logger.InfoWithContext(ctx, "Просроченные элементы очереди возвращены в ожидание",
			interfaces.LogField{Key: "count", Value: released},
		)
	}

	items, err := w.queue.Claim(ctx, tenantID, w.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue items: %w", err)
	}

	result := &models.PricePushResult{Results: make([]models.PushItemResult, 0, len(items))}
	for i, item := range items {
		if ctx.Err() != nil {
			ids := make([]string, 0, len(items)-i)
			for _, rest := range items[i:] {
				ids = append(ids, rest.ID)
			}
			if err := w.queue.Release(bg, ids); err != nil {
				w.logger.ErrorWithContext(ctx, "Не удалось вернуть элементы очереди после отмены",
					interfaces.LogField{Key: "error", Value: err.Error()},
				)
			}
			result.Released = len(ids)
			break
		}

		r := w.pushItem(ctx, item)
		result.Processed++
		if r.Status == models.PushStatusFailed {
			result.Failed++
		}
		result.Results = append(result.Results, r)
	}

	if result.Processed > 0 {
		if err := w.events.PublishEvent(bg, tenantID, "", EventPricePushCompleted, result); err != nil {
			w.logger.WarnWithContext(ctx, "Не удалось опубликовать событие прохода воркера",
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}

	w.logger.InfoWithContext(ctx, "Проход воркера цен и остатков завершен",
		interfaces.LogField{Key: "processed", Value: result.Processed},
		interfaces.LogField{Key: "failed", Value: result.Failed},
		interfaces.LogField{Key: "released", Value: result.Released},
	)
	return result, nil
}

func (w *PricePushWorker) pushItem(ctx context.Context, item *models.SyncQueueItem) models.PushItemResult {
	link, err := w.links.GetLink(ctx, item.TenantID, item.ProductLinkID)
	if err != nil {
		return w.fail(ctx, item, "", fmt.Errorf("failed to get link: %w", err))
	}
	account, err := w.accounts.GetAccount(ctx, item.TenantID, link.AccountID)
	if err != nil {
		return w.fail(ctx, item, "", fmt.Errorf("failed to get account: %w", err))
	}
	ctx = ctxkeys.WithAccount(ctx, account.ID, string(account.Platform))
	if !account.Active {
		return w.fail(ctx, item, account.Platform, utils.ErrAccountInactive)
	}
	if link.Status != models.LinkStatusActive {
		return w.fail(ctx, item, account.Platform, fmt.Errorf("link %s is %s", link.ID, link.Status))
	}
	connector, err := w.registry.Get(account.Platform)
	if err != nil {
		return w.fail(ctx, item, account.Platform, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	receipt, err := connector.PushPriceStock(callCtx, account, connectors.PriceStockUpdate{
		ListingID: link.RemoteListingID,
		VariantID: link.RemoteVariantID,
		Price:     item.TargetPrice,
		Stock:     item.TargetStock,
	})
	cancel()
	if err != nil {
		return w.fail(ctx, item, account.Platform, err)
	}

	// площадка уже приняла изменение, поэтому фиксация не зависит от отмены вызывающего
	bg := context.WithoutCancel(ctx)
	err = w.txManager.Do(bg, func(ctx context.Context) error {
		if err := w.queue.MarkDone(ctx, item.ID); err != nil {
			return err
		}
		return w.links.UpdateRemoteState(ctx, link.ID, receipt.Price, receipt.Stock)
	})
	if err != nil {
		// элемент останется в processing и после истечения аренды будет отправлен повторно
		w.logger.ErrorWithContext(ctx, "Изменение отправлено, но не зафиксировано",
			interfaces.LogField{Key: "item_id", Value: item.ID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		w.metrics.PushItem(account.Platform, models.PushStatusFailed)
		return models.PushItemResult{ItemID: item.ID, Status: models.PushStatusFailed, Error: err.Error()}
	}

	w.metrics.PushItem(account.Platform, models.PushStatusDone)
	w.logger.DebugWithContext(ctx, "Цена и остаток отправлены",
		interfaces.LogField{Key: "item_id", Value: item.ID},
		interfaces.LogField{Key: "reference", Value: receipt.Reference},
	)
	return models.PushItemResult{ItemID: item.ID, Status: models.PushStatusDone}
}

func (w *PricePushWorker) fail(ctx context.Context, item *models.SyncQueueItem, platform models.Platform, cause error) models.PushItemResult {
	status, err := w.queue.MarkFailed(context.WithoutCancel(ctx), item.ID, cause.Error(), w.now().UTC())
	if err != nil {
		w.logger.ErrorWithContext(ctx, "Не удалось записать ошибку элемента очереди",
			interfaces.LogField{Key: "item_id", Value: item.ID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}

	if platform == "" {
		platform = "unknown"
	}
	w.metrics.PushItem(platform, models.PushStatusFailed)
	w.logger.WarnWithContext(ctx, "Не удалось отправить цену и остаток",
		interfaces.LogField{Key: "item_id", Value: item.ID},
		interfaces.LogField{Key: "kind", Value: connectors.KindOf(cause)},
		interfaces.LogField{Key: "queue_status", Value: string(status)},
		interfaces.LogField{Key: "error", Value: cause.Error()},
	)
	return models.PushItemResult{ItemID: item.ID, Status: models.PushStatusFailed, Error: cause.Error()}
}
