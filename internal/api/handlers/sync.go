package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// SyncService входящая синхронизация заказов
type SyncService interface {
	SyncPlatform(ctx context.Context, tenantID string, platform models.Platform, accountID string, window models.TimeRange) (*models.SyncSummary, error)
}

// PricePusher один проход исходящей синхронизации цен и остатков
type PricePusher interface {
	RunPass(ctx context.Context, tenantID string) (*models.PricePushResult, error)
}

// SyncHandler обработчик запусков синхронизации
type SyncHandler struct {
	sync   SyncService
	pusher PricePusher
	logger interfaces.LoggerPort
	now    func() time.Time
}

// NewSyncHandler создает обработчик синхронизации
func NewSyncHandler(sync SyncService, pusher PricePusher, logger interfaces.LoggerPort) *SyncHandler {
	return &SyncHandler{sync: sync, pusher: pusher, logger: logger, now: time.Now}
}

type syncRequest struct {
	AccountID string     `json:"accountId,omitempty" validate:"omitempty,max=64"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Days      int        `json:"days,omitempty" validate:"omitempty,min=1,max=180"`
}

var (
	errHalfWindow  = errors.New("from and to must be set together")
	errMixedWindow = errors.New("use either from/to or days")
)

// window окно синхронизации; нулевое окно означает значение по умолчанию сервиса
func (req syncRequest) window(now time.Time) (models.TimeRange, error) {
	switch {
	case (req.From == nil) != (req.To == nil):
		return models.TimeRange{}, errHalfWindow
	case req.From != nil && req.Days > 0:
		return models.TimeRange{}, errMixedWindow
	case req.From != nil:
		w := models.TimeRange{From: req.From.UTC(), To: req.To.UTC()}
		return w, w.Validate()
	case req.Days > 0:
		return models.LastDays(now.UTC(), req.Days), nil
	default:
		return models.TimeRange{}, nil
	}
}

// syncErrorResponse ответ, когда синхронизация не была начата
type syncErrorResponse struct {
	Success         bool   `json:"success"`
	OrdersProcessed int    `json:"ordersProcessed"`
	Error           string `json:"error"`
	ErrorKind       string `json:"errorKind,omitempty"`
}

// SyncPlatform запускает синхронизацию заказов площадки
// @Summary      Синхронизация заказов площадки
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        platform  path  string  true  "trendyol | woocommerce | n11 | ciceksepeti"
// @Success      200  {object}  models.SyncSummary
// @Router       /sync/{platform} [post]
func (h *SyncHandler) SyncPlatform(w http.ResponseWriter, r *http.Request) {
	platform, err := models.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "unknown_platform", err.Error())
		return
	}

	var req syncRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	window, err := req.window(h.now())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	tenantID := tenantFrom(r)
	summary, err := h.sync.SyncPlatform(r.Context(), tenantID, platform, req.AccountID, window)
	if err != nil {
		status, _ := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorWithContext(r.Context(), "Ошибка запуска синхронизации",
				interfaces.LogField{Key: "platform", Value: platform},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
		render.Status(r, status)
		render.JSON(w, r, syncErrorResponse{
			Error:     err.Error(),
			ErrorKind: services.FailureKind(err),
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, summary)
}

// PricePush выполняет один проход очереди цен и остатков арендатора
// @Summary      Отправка цен и остатков
// @Tags         sync
// @Produce      json
// @Success      200  {object}  models.PricePushResult
// @Router       /sync/price-push [post]
func (h *SyncHandler) PricePush(w http.ResponseWriter, r *http.Request) {
	result, err := h.pusher.RunPass(r.Context(), tenantFrom(r))
	if err != nil {
		status, code := errorStatus(err)
		h.logger.ErrorWithContext(r.Context(), "Ошибка прохода очереди цен",
			interfaces.LogField{Key: "error", Value: err.Error()})
		writeError(w, r, status, code, err.Error())
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}
