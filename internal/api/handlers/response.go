package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/billing"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: code, Code: status, Message: message})
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data, meta interface{}) {
	render.Status(r, status)
	render.JSON(w, r, response{Success: true, Data: data, Meta: meta})
}

// errorStatus сопоставляет доменную ошибку HTTP статусу и коду ответа
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, utils.ErrNotFound), errors.Is(err, utils.ErrLinkNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, utils.ErrAccountInactive):
		return http.StatusConflict, "account_inactive"
	case errors.Is(err, utils.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, utils.ErrLinkExists):
		return http.StatusConflict, "link_exists"
	case errors.Is(err, utils.ErrSyncNotAllowed):
		return http.StatusPaymentRequired, "sync_not_allowed"
	case errors.Is(err, utils.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, utils.ErrInvalidPrice), errors.Is(err, models.ErrEmptyRange):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, connectors.ErrNotSupported):
		return http.StatusNotImplemented, "not_supported"
	case errors.Is(err, connectors.ErrAuthRejected), errors.Is(err, connectors.ErrInvalidCredentials):
		return http.StatusBadGateway, "reconnect_required"
	case errors.Is(err, connectors.ErrAccessBlocked):
		return http.StatusBadGateway, "access_blocked"
	case errors.Is(err, connectors.ErrTransportTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, billing.ErrBillingUnavailable), errors.Is(err, connectors.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

var errBodyRequired = errors.New("request body is required")

// decodeJSON читает тело запроса и проверяет его тегами validate.
// Пустое тело допустимо, если allowEmpty.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	if r.Body == nil {
		if !allowEmpty {
			return errBodyRequired
		}
		return validate.Struct(dst)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	switch {
	case errors.Is(err, io.EOF):
		if !allowEmpty {
			return errBodyRequired
		}
	case err != nil:
		return fmt.Errorf("invalid request body: %w", err)
	}
	return validate.Struct(dst)
}

// validationMessage превращает ошибки validator в читаемый список полей
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func tenantFrom(r *http.Request) string {
	return ctxkeys.Tenant(r.Context())
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
