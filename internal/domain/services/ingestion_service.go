package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"golang.org/x/sync/errgroup"
)

// EventOrdersSynced событие о завершении синхронизации аккаунта
const EventOrdersSynced = "orders_synced"

const (
	FailureKindMalformed   = "malformed"
	FailureKindPersistence = "persistence"
)

// IngestionConfig параметры входящей синхронизации
type IngestionConfig struct {
	// DefaultLookback окно, если вызывающий его не задал
	DefaultLookback time.Duration
	// LockTTL время жизни блокировки аккаунта
	LockTTL time.Duration
	// AccountConcurrency число аккаунтов, синхронизируемых одновременно
	AccountConcurrency int
}

// IngestionDeps зависимости сервиса входящей синхронизации
type IngestionDeps struct {
	Accounts AccountRepository
	Orders   OrderRepository
	Registry *connectors.Registry
	Chunker  *RangeChunker
	Billing  BillingGate
	// Cache необязателен: без него блокировка аккаунта не берется
	Cache   interfaces.CachePort
	Events  EventPublisher
	Metrics SyncRecorder
	Logger  interfaces.LoggerPort
}

// IngestionService входящая синхронизация: площадка -> канонические заказы -> хранилище
type IngestionService struct {
	IngestionDeps
	cfg IngestionConfig
	now func() time.Time
}

// NewIngestionService создает сервис входящей синхронизации
func NewIngestionService(deps IngestionDeps, cfg IngestionConfig) *IngestionService {
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = 7 * 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.AccountConcurrency < 1 {
		cfg.AccountConcurrency = 4
	}
	if deps.Chunker == nil {
		deps.Chunker = NewRangeChunker(0)
	}
	if deps.Events == nil {
		deps.Events = NopPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = NopRecorder()
	}
	return &IngestionService{IngestionDeps: deps, cfg: cfg, now: time.Now}
}

// SyncAccount синхронизирует заказы одного аккаунта за окно window (пустое окно - DefaultLookback).
// Ошибка возвращается, только если синхронизация не начиналась: аккаунт не найден, отключен,
// запрещен биллингом или уже синхронизируется. Сбои подынтервалов и заказов попадают в результат.
func (s *IngestionService) SyncAccount(ctx context.Context, tenantID, accountID string, window models.TimeRange) (*models.SyncResult, error) {
	account, err := s.Accounts.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	return s.syncAccount(ctx, account, window)
}

func (s *IngestionService) syncAccount(ctx context.Context, account *models.Account, window models.TimeRange) (*models.SyncResult, error) {
	ctx = ctxkeys.WithAccount(ctx, account.ID, string(account.Platform))
	if !account.Active {
		return nil, fmt.Errorf("account %s: %w", account.ID, utils.ErrAccountInactive)
	}

	allowed, err := s.Billing.CanSync(ctx, account.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to check billing for tenant %s: %w", account.TenantID, err)
	}
	if !allowed {
		return nil, utils.ErrSyncNotAllowed
	}

	connector, err := s.Registry.Get(account.Platform)
	if err != nil {
		return nil, err
	}
	limits := connector.Limits()

	window, err = s.clampWindow(window, limits)
	if err != nil {
		return nil, err
	}

	release, err := s.lockAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &models.SyncResult{
		AccountID: account.ID,
		Platform:  account.Platform,
		Window:    window,
		StartedAt: s.now().UTC(),
	}

	raws, outcomes := s.Chunker.Fetch(ctx, window, limits, func(ctx context.Context, r models.TimeRange) ([]raw.Order, error) {
		return connector.FetchOrders(ctx, account, r)
	})

	result.ChunksTotal = len(outcomes)
	var firstErr error
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = o.Err
		}
		kind := connectors.KindOf(o.Err)
		result.ChunksFailed++
		result.AddFailure(models.FailureUnitChunk, formatRange(o.Range), kind, o.Err)
		s.Metrics.ChunkFailed(account.Platform, kind)
		s.Logger.WarnWithContext(ctx, "Ошибка выборки подынтервала",
			interfaces.LogField{Key: "range", Value: formatRange(o.Range)},
			interfaces.LogField{Key: "kind", Value: kind},
			interfaces.LogField{Key: "error", Value: o.Err.Error()},
		)
	}

	if result.ChunksTotal > 0 && result.ChunksFailed == result.ChunksTotal {
		result.Error = fmt.Errorf("%w: %v", utils.ErrAllChunksFailed, firstErr).Error()
		result.ErrorKind = connectors.KindOf(firstErr)
		result.FinishedAt = s.now().UTC()
		s.finish(ctx, account, result)
		s.Logger.ErrorWithContext(ctx, "Синхронизация аккаунта прервана: все подынтервалы завершились ошибкой",
			interfaces.LogField{Key: "kind", Value: result.ErrorKind},
		)
		return result, nil
	}

	for i, r := range raws {
		ref := r.NativeID()
		if ref == "" {
			ref = fmt.Sprintf("#%d", i)
		}

		order, err := MapOrder(account.TenantID, account, r)
		if err != nil {
			result.OrdersFailed++
			result.AddFailure(models.FailureUnitOrder, ref, FailureKindMalformed, err)
			s.Logger.WarnWithContext(ctx, "Не удалось разобрать заказ площадки",
				interfaces.LogField{Key: "order", Value: ref},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			continue
		}

		if _, err := s.Orders.UpsertOrder(ctx, order); err != nil {
			result.OrdersFailed++
			result.AddFailure(models.FailureUnitOrder, ref, FailureKindPersistence, err)
			s.Logger.ErrorWithContext(ctx, "Не удалось сохранить заказ",
				interfaces.LogField{Key: "order", Value: ref},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			continue
		}
		result.OrdersProcessed++
	}

	result.Success = result.ChunksFailed == 0 && result.OrdersFailed == 0
	result.FinishedAt = s.now().UTC()
	s.finish(ctx, account, result)

	s.Logger.InfoWithContext(ctx, "Синхронизация аккаунта завершена",
		interfaces.LogField{Key: "processed", Value: result.OrdersProcessed},
		interfaces.LogField{Key: "failed", Value: result.OrdersFailed},
		interfaces.LogField{Key: "chunks_failed", Value: result.ChunksFailed},
	)
	return result, nil
}

func (s *IngestionService) finish(ctx context.Context, account *models.Account, result *models.SyncResult) {
	s.Metrics.OrdersSynced(account.Platform, result.OrdersProcessed, result.OrdersFailed)
	s.Metrics.SyncDuration(account.Platform, result.FinishedAt.Sub(result.StartedAt))

	if err := s.Events.PublishEvent(context.WithoutCancel(ctx), account.TenantID, account.ID, EventOrdersSynced, result); err != nil {
		s.Logger.WarnWithContext(ctx, "Не удалось опубликовать событие синхронизации",
			interfaces.LogField{Key: "account_id", Value: account.ID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}

// clampWindow подставляет окно по умолчанию и обрезает начало до предела площадки
func (s *IngestionService) clampWindow(window models.TimeRange, limits connectors.Limits) (models.TimeRange, error) {
	if window.From.IsZero() && window.To.IsZero() {
		now := s.now().UTC()
		window = models.TimeRange{From: now.Add(-s.cfg.DefaultLookback), To: now}
	}
	if window.To.IsZero() {
		window.To = s.now().UTC()
	}
	if err := window.Validate(); err != nil {
		return window, err
	}
	if limits.MaxWindow > 0 {
		earliest := window.To.Add(-limits.MaxWindow)
		if limits.Location != nil {
			// площадка считает целыми сутками: неполный первый день дал бы лишние сутки сверх предела
			earliest = models.NextMidnight(earliest, limits.Location)
		}
		if window.From.Before(earliest) {
			window.From = earliest
		}
	}
	return window, nil
}

func (s *IngestionService) lockAccount(ctx context.Context, account *models.Account) (func(), error) {
	if s.Cache == nil {
		return func() {}, nil
	}

	key := "sync:account:" + account.ID
	ok, err := s.Cache.LockWithTenant(ctx, key, account.TenantID, s.cfg.LockTTL)
	if err != nil {
		// при недоступном Redis синхронизация идет без блокировки
		s.Logger.WarnWithContext(ctx, "Не удалось взять блокировку аккаунта, продолжаем без нее",
			interfaces.LogField{Key: "account_id", Value: account.ID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("account %s: %w", account.ID, utils.ErrSyncInProgress)
	}

	return func() {
		if err := s.Cache.UnlockWithTenant(context.WithoutCancel(ctx), key, account.TenantID); err != nil {
			s.Logger.WarnWithContext(ctx, "Не удалось снять блокировку аккаунта",
				interfaces.LogField{Key: "account_id", Value: account.ID},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}, nil
}

// SyncPlatform синхронизирует один аккаунт площадки, если accountID задан, иначе все активные аккаунты арендатора
func (s *IngestionService) SyncPlatform(ctx context.Context, tenantID string, platform models.Platform, accountID string, window models.TimeRange) (*models.SyncSummary, error) {
	if accountID != "" {
		account, err := s.Accounts.GetAccount(ctx, tenantID, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
		}
		if account.Platform != platform {
			return nil, fmt.Errorf("account %s is not a %s account: %w", accountID, platform, utils.ErrNotFound)
		}

		result, err := s.syncAccount(ctx, account, window)
		if err != nil {
			return nil, err
		}
		summary := &models.SyncSummary{Platform: platform}
		summary.Add(result)
		return summary, nil
	}

	accounts, err := s.Accounts.ListAccounts(ctx, tenantID, platform, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no active %s accounts: %w", platform, utils.ErrNotFound)
	}

	summary := s.syncMany(ctx, accounts, window)
	summary.Platform = platform
	return summary, nil
}

// SyncAllActive синхронизирует все активные аккаунты всех арендаторов за окно по умолчанию
func (s *IngestionService) SyncAllActive(ctx context.Context) (*models.SyncSummary, error) {
	accounts, err := s.Accounts.ListAccounts(ctx, "", "", true)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return s.syncMany(ctx, accounts, models.TimeRange{}), nil
}

// syncMany аккаунты независимы: ошибка одного не влияет на остальные
func (s *IngestionService) syncMany(ctx context.Context, accounts []*models.Account, window models.TimeRange) *models.SyncSummary {
	results := make([]*models.SyncResult, len(accounts))

	var g errgroup.Group
	g.SetLimit(s.cfg.AccountConcurrency)
	for i, account := range accounts {
		g.Go(func() error {
			result, err := s.syncAccount(ctx, account, window)
			if err != nil {
				result = &models.SyncResult{
					AccountID: account.ID,
					Platform:  account.Platform,
					Window:    window,
					Error:     err.Error(),
					ErrorKind: FailureKind(err),
				}
				result.AddFailure(models.FailureUnitAccount, account.ID, result.ErrorKind, err)
				if !errors.Is(err, utils.ErrSyncInProgress) {
					s.Logger.WarnWithContext(ctx, "Синхронизация аккаунта не выполнена",
						interfaces.LogField{Key: "account_id", Value: account.ID},
						interfaces.LogField{Key: "error", Value: err.Error()},
					)
				}
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	summary := &models.SyncSummary{Success: true}
	for _, r := range results {
		summary.Add(r)
	}
	return summary
}

// FailureKind короткое имя причины отказа для ответов API
func FailureKind(err error) string {
	switch {
	case errors.Is(err, utils.ErrAccountInactive):
		return "inactive"
	case errors.Is(err, utils.ErrSyncNotAllowed):
		return "not_allowed"
	case errors.Is(err, utils.ErrSyncInProgress):
		return "in_progress"
	case errors.Is(err, utils.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrEmptyRange):
		return "invalid_range"
	case errors.Is(err, utils.ErrPersistence):
		return FailureKindPersistence
	default:
		return connectors.KindOf(err)
	}
}

func formatRange(r models.TimeRange) string {
	return r.From.UTC().Format(time.RFC3339) + "/" + r.To.UTC().Format(time.RFC3339)
}
