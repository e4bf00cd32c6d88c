package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
)

const (
	// DefaultTimeout таймаут одного запроса к площадке
	DefaultTimeout = 30 * time.Second
	// maxResponseSize 10 МБ
	maxResponseSize = 10 << 20
	userAgent       = "gomarket-marketplace-service/1.0"
)

// Response ответ площадки, прошедший классификацию
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport HTTP-клиент площадки, переводящий сбои в виды ошибок коннекторов
type Transport struct {
	platform models.Platform
	client   *http.Client
}

// NewTransport создает транспорт с явным таймаутом на каждый запрос
func NewTransport(platform models.Platform, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{
		platform: platform,
		client:   &http.Client{Timeout: timeout},
	}
}

// Do выполняет запрос. allowStatus перечисляет не-2xx коды, тело которых вызывающий разберет сам
// (например, SOAP Fault приходит с кодом 500).
func (t *Transport) Do(req *http.Request, op string, allowStatus ...int) (*Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.classifyTransportError(req.Context(), op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, t.classifyTransportError(req.Context(), op, err)
	}
	if len(body) > maxResponseSize {
		return nil, NewError(ErrMalformedResponse, t.platform, op, resp.StatusCode, nil,
			fmt.Errorf("response exceeds %d bytes", maxResponseSize))
	}

	if IsHTML(resp.Header.Get("Content-Type"), body) {
		return nil, NewError(ErrAccessBlocked, t.platform, op, resp.StatusCode, body, nil)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}
	for _, s := range allowStatus {
		if resp.StatusCode == s {
			return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
		}
	}

	return nil, NewError(kindForStatus(resp.StatusCode), t.platform, op, resp.StatusCode, body, nil)
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrAuthRejected
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrTransportTimeout
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}

func (t *Transport) classifyTransportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s %s: %w", t.platform, op, context.Canceled)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewError(ErrTransportTimeout, t.platform, op, 0, nil, err)
	}
	return NewError(ErrUnavailable, t.platform, op, 0, nil, err)
}

// IsHTML определяет HTML-страницу (WAF, капча, страница входа) вместо данных API
func IsHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := bytes.TrimSpace(body)
	if len(head) > 64 {
		head = head[:64]
	}
	lower := strings.ToLower(string(head))
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}

// DecodeJSON разбирает тело ответа, превращая ошибку разбора в ErrMalformedResponse
func DecodeJSON(platform models.Platform, op string, resp *Response, v interface{}) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return NewError(ErrMalformedResponse, platform, op, resp.StatusCode, resp.Body, err)
	}
	return nil
}

// NewJSONRequest собирает запрос с JSON-телом
func NewJSONRequest(ctx context.Context, method, url string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
