package n11

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
)

const (
	soapEnvNS = "http://schemas.xmlsoap.org/soap/envelope/"
	schemaNS  = "http://www.n11.com/ws/schemas"
)

type requestEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	EnvNS   string   `xml:"xmlns:soapenv,attr"`
	SchNS   string   `xml:"xmlns:sch,attr"`
	Header  struct{} `xml:"soapenv:Header"`
	Body    struct {
		Content interface{}
	} `xml:"soapenv:Body"`
}

type responseEnvelope struct {
	Body struct {
		Fault   *soapFault `xml:"Fault"`
		Content []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// authData учетные данные, повторяемые в каждом запросе
type authData struct {
	AppKey    string `xml:"appKey"`
	AppSecret string `xml:"appSecret"`
}

type pagingData struct {
	CurrentPage int `xml:"currentPage"`
	PageSize    int `xml:"pageSize"`
	TotalCount  int `xml:"totalCount,omitempty"`
	PageCount   int `xml:"pageCount,omitempty"`
}

// serviceResult блок result, присутствующий в каждом ответе
type serviceResult struct {
	Status        string `xml:"status"`
	ErrorCode     string `xml:"errorCode"`
	ErrorMessage  string `xml:"errorMessage"`
	ErrorCategory string `xml:"errorCategory"`
}

func (r serviceResult) err(op string, body []byte) error {
	if strings.EqualFold(r.Status, "success") {
		return nil
	}
	if r.Status == "" {
		return connectors.NewError(connectors.ErrMalformedResponse, models.PlatformN11, op, http.StatusOK, body,
			fmt.Errorf("result status is missing"))
	}
	kind := connectors.ErrRejected
	lower := strings.ToLower(r.ErrorCode + " " + r.ErrorCategory + " " + r.ErrorMessage)
	if strings.Contains(lower, "auth") || strings.Contains(lower, "appkey") {
		kind = connectors.ErrAuthRejected
	}
	return connectors.NewError(kind, models.PlatformN11, op, http.StatusOK, body,
		fmt.Errorf("%s: %s", r.ErrorCode, r.ErrorMessage))
}

// call выполняет SOAP-операцию service/action и разбирает содержимое Body в out.
// Fault приходит с кодом 500, поэтому этот код разбирается здесь, а не транспортом.
func (c *Connector) call(ctx context.Context, baseURL, service, action string, in, out interface{}) error {
	env := requestEnvelope{EnvNS: soapEnvNS, SchNS: schemaNS}
	env.Body.Content = in

	payload, err := xml.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", action, err)
	}

	url := strings.TrimRight(baseURL, "/") + "/" + service + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	resp, err := c.transport.Do(req, action, http.StatusInternalServerError)
	if err != nil {
		return err
	}

	var envelope responseEnvelope
	if err := xml.Unmarshal(resp.Body, &envelope); err != nil {
		return connectors.NewError(connectors.ErrMalformedResponse, models.PlatformN11, action, resp.StatusCode, resp.Body, err)
	}
	if f := envelope.Body.Fault; f != nil {
		kind := connectors.ErrRejected
		if strings.Contains(strings.ToLower(f.String), "auth") {
			kind = connectors.ErrAuthRejected
		} else if resp.StatusCode >= 500 && strings.HasSuffix(f.Code, "Server") {
			kind = connectors.ErrUnavailable
		}
		return connectors.NewError(kind, models.PlatformN11, action, resp.StatusCode, resp.Body,
			fmt.Errorf("soap fault %s: %s", f.Code, f.String))
	}
	if resp.StatusCode != http.StatusOK {
		return connectors.NewError(connectors.ErrUnavailable, models.PlatformN11, action, resp.StatusCode, resp.Body, nil)
	}

	if err := xml.Unmarshal(envelope.Body.Content, out); err != nil {
		return connectors.NewError(connectors.ErrMalformedResponse, models.PlatformN11, action, resp.StatusCode, resp.Body, err)
	}
	return nil
}
