package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
)

// Виды ошибок коннекторов
var (
	ErrAuthRejected      = errors.New("authentication rejected")
	ErrAccessBlocked     = errors.New("access blocked")
	ErrRateLimited       = errors.New("rate limited")
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnavailable       = errors.New("platform unavailable")
	ErrRejected          = errors.New("request rejected")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownPlatform    = errors.New("unknown platform")
	ErrNotSupported       = errors.New("operation not supported by platform")
)

// maxBodySnippet сколько байт тела ответа сохраняется в ошибке
const maxBodySnippet = 2048

// Error ошибка обращения к площадке с классификацией
type Error struct {
	Kind       error
	Platform   models.Platform
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError создает классифицированную ошибку, обрезая тело ответа
func NewError(kind error, platform models.Platform, op string, status int, body []byte, err error) *Error {
	if len(body) > maxBodySnippet {
		body = body[:maxBodySnippet]
	}
	return &Error{Kind: kind, Platform: platform, Op: op, StatusCode: status, Body: string(body), Err: err}
}

// KindOf возвращает короткое имя вида ошибки для ответов и метрик
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRejected), errors.Is(err, ErrInvalidCredentials):
		return "auth"
	case errors.Is(err, ErrAccessBlocked):
		return "access_blocked"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransportTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}

// IsRetryable сообщает, имеет ли смысл повторить операцию позже
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransportTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsCredentialProblem ошибки, которые требуют от арендатора переподключить магазин
func IsCredentialProblem(err error) bool {
	return errors.Is(err, ErrAuthRejected) || errors.Is(err, ErrInvalidCredentials)
}
