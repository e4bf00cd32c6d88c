package handlers

import (
	"context"
	"net/http"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CatalogEditor изменения цены и остатка локальных товаров
type CatalogEditor interface {
	UpdatePriceStock(ctx context.Context, tenantID, productID string, price decimal.Decimal, stock int) (*services.CatalogChangeResult, error)
	AdjustStock(ctx context.Context, tenantID, productID string, delta int) (*services.CatalogChangeResult, error)
}

// ProductHandler обработчик изменений товаров
type ProductHandler struct {
	catalog CatalogEditor
	logger  interfaces.LoggerPort
}

// NewProductHandler создает новый обработчик продуктов
func NewProductHandler(catalog CatalogEditor, logger interfaces.LoggerPort) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

type priceStockRequest struct {
	Price *decimal.Decimal `json:"price" validate:"required"`
	Stock *int             `json:"stock" validate:"required,min=0"`
}

type stockAdjustRequest struct {
	Delta int `json:"delta" validate:"required"`
}

func (h *ProductHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorWithContext(r.Context(), msg, interfaces.LogField{Key: "error", Value: err.Error()})
	}
	writeError(w, r, status, code, err.Error())
}

// UpdatePriceStock задает цену и остаток; изменение ставится в очередь для каждой активной связи
func (h *ProductHandler) UpdatePriceStock(w http.ResponseWriter, r *http.Request) {
	var req priceStockRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	result, err := h.catalog.UpdatePriceStock(r.Context(), tenantFrom(r), chi.URLParam(r, "id"), *req.Price, *req.Stock)
	if err != nil {
		h.fail(w, r, "Ошибка изменения цены и остатка", err)
		return
	}
	writeData(w, r, http.StatusOK, result, nil)
}

// AdjustStock атомарно изменяет остаток на delta
func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockAdjustRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	result, err := h.catalog.AdjustStock(r.Context(), tenantFrom(r), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		h.fail(w, r, "Ошибка изменения остатка", err)
		return
	}
	writeData(w, r, http.StatusOK, result, nil)
}
