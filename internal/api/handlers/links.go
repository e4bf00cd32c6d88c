package handlers

import (
	"context"
	"net/http"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
)

// Matcher сопоставление локальных товаров с листингами площадок
type Matcher interface {
	Resolve(ctx context.Context, tenantID, accountID string, listing models.RemoteListing) (*models.MatchResult, error)
	LinkManually(ctx context.Context, tenantID, productID, accountID string, listing models.RemoteListing) (*models.ProductLink, error)
	Unmatch(ctx context.Context, tenantID, productID, accountID string) error
	AutoMatch(ctx context.Context, tenantID, accountID string, query connectors.CatalogQuery) (*models.AutoMatchResult, error)
	PublishAsNew(ctx context.Context, tenantID, productID, accountID string) (*models.ProductLink, error)
}

// LinkHandler обработчик связей товаров с листингами
type LinkHandler struct {
	matcher Matcher
	logger  interfaces.LoggerPort
}

// NewLinkHandler создает обработчик связей
func NewLinkHandler(matcher Matcher, logger interfaces.LoggerPort) *LinkHandler {
	return &LinkHandler{matcher: matcher, logger: logger}
}

type matchRequest struct {
	AccountID string               `json:"accountId" validate:"required"`
	Listing   models.RemoteListing `json:"listing" validate:"required"`
}

type autoMatchRequest struct {
	AccountID string                  `json:"accountId" validate:"required"`
	Query     connectors.CatalogQuery `json:"query"`
}

type manualLinkRequest struct {
	ProductID string               `json:"productId" validate:"required"`
	AccountID string               `json:"accountId" validate:"required"`
	Listing   models.RemoteListing `json:"listing" validate:"required"`
}

type publishRequest struct {
	ProductID string `json:"productId" validate:"required"`
	AccountID string `json:"accountId" validate:"required"`
}

func (h *LinkHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorWithContext(r.Context(), msg, interfaces.LogField{Key: "error", Value: err.Error()})
	}
	writeError(w, r, status, code, err.Error())
}

// Match сопоставляет один листинг: сначала по коду, затем по штрихкоду
func (h *LinkHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	result, err := h.matcher.Resolve(r.Context(), tenantFrom(r), req.AccountID, req.Listing)
	if err != nil {
		h.fail(w, r, "Ошибка сопоставления листинга", err)
		return
	}
	writeData(w, r, http.StatusOK, result, nil)
}

// AutoMatch сопоставляет весь каталог аккаунта
func (h *LinkHandler) AutoMatch(w http.ResponseWriter, r *http.Request) {
	var req autoMatchRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	result, err := h.matcher.AutoMatch(r.Context(), tenantFrom(r), req.AccountID, req.Query)
	if err != nil {
		h.fail(w, r, "Ошибка автосопоставления каталога", err)
		return
	}
	writeData(w, r, http.StatusOK, result, nil)
}

// LinkManually создает связь, выбранную пользователем
func (h *LinkHandler) LinkManually(w http.ResponseWriter, r *http.Request) {
	var req manualLinkRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	link, err := h.matcher.LinkManually(r.Context(), tenantFrom(r), req.ProductID, req.AccountID, req.Listing)
	if err != nil {
		h.fail(w, r, "Ошибка создания связи", err)
		return
	}
	writeData(w, r, http.StatusCreated, link, nil)
}

// Unmatch удаляет связь товара с одним аккаунтом
func (h *LinkHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	err := h.matcher.Unmatch(r.Context(), tenantFrom(r), chi.URLParam(r, "productId"), chi.URLParam(r, "accountId"))
	if err != nil {
		h.fail(w, r, "Ошибка удаления связи", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish создает на площадке новый листинг из товара
func (h *LinkHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	link, err := h.matcher.PublishAsNew(r.Context(), tenantFrom(r), req.ProductID, req.AccountID)
	if err != nil {
		h.fail(w, r, "Ошибка публикации товара", err)
		return
	}
	writeData(w, r, http.StatusCreated, link, nil)
}
