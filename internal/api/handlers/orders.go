package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/utils"
	"github.com/go-chi/chi/v5"
)

// OrderReader чтение канонических заказов для слоя представления
type OrderReader interface {
	GetOrder(ctx context.Context, tenantID string, platform models.Platform, nativeOrderID string) (*models.CanonicalOrder, error)
	ListOrders(ctx context.Context, tenantID string, filter models.OrderFilter, pagination *utils.Pagination) ([]*models.CanonicalOrder, int64, error)
}

// OrderHandler обработчик чтения заказов
type OrderHandler struct {
	orders OrderReader
	logger interfaces.LoggerPort
}

// NewOrderHandler создает обработчик заказов
func NewOrderHandler(orders OrderReader, logger interfaces.LoggerPort) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// ListOrders возвращает страницу заказов арендатора
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", utils.DefaultPageSize)
	pagination := utils.NewPagination(page, pageSize, q.Get("sort_by"), q.Get("sort_desc") == "true")

	filter := models.OrderFilter{
		AccountID: q.Get("account_id"),
		Status:    models.OrderStatus(q.Get("status")),
	}
	if p := q.Get("platform"); p != "" {
		platform, err := models.ParsePlatform(p)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		filter.Platform = platform
	}
	for name, dst := range map[string]*time.Time{"from": &filter.OrderedFrom, "to": &filter.OrderedTo} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "invalid "+name+": expected RFC3339")
			return
		}
		*dst = t
	}

	orders, total, err := h.orders.ListOrders(r.Context(), tenantFrom(r), filter, pagination)
	if err != nil {
		status, code := errorStatus(err)
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения списка заказов",
			interfaces.LogField{Key: "error", Value: err.Error()})
		writeError(w, r, status, code, "Ошибка получения списка заказов")
		return
	}
	pagination.SetTotal(total)

	writeData(w, r, http.StatusOK, orders, pagination)
}

// GetOrder возвращает заказ по площадке и номеру заказа на площадке
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	platform, err := models.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "unknown_platform", err.Error())
		return
	}

	order, err := h.orders.GetOrder(r.Context(), tenantFrom(r), platform, chi.URLParam(r, "nativeId"))
	if err != nil {
		status, code := errorStatus(err)
		if status == http.StatusNotFound {
			writeError(w, r, status, code, "Заказ не найден")
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения заказа",
			interfaces.LogField{Key: "error", Value: err.Error()})
		writeError(w, r, status, code, "Ошибка получения заказа")
		return
	}

	writeData(w, r, http.StatusOK, order, nil)
}
