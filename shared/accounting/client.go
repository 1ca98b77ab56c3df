// Package accounting exports contacts and invoices to the external bookkeeping
// system.
package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

// maxErrorBody caps how much of an upstream error body is kept
const maxErrorBody = 4096

// Client talks JSON over HTTPS to the accounting API with a bearer key
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
	log        *logrus.Entry

	mutex       sync.RWMutex
	lastSuccess time.Time
	lastError   error
}

// NewClient builds a client with the configured timeout and a breaker that opens
// after 5 consecutive outages for 30 seconds
func NewClient(cfg *config.AccountingConfig, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	breaker := utils.NewCircuitBreaker("accounting", 5, 30*time.Second)
	breaker.OnStateChange = func(name string, from, to utils.CircuitState) {
		log.WithFields(logrus.Fields{"breaker": name, "from": from, "to": to}).Warn("Circuit breaker state changed")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		log:        log,
	}
}

type createdResponse struct {
	ID string `json:"id"`
}

// CreateContact registers a customer and returns its external id
func (c *Client) CreateContact(ctx context.Context, contact Contact) (string, error) {
	return c.create(ctx, "/contacts", contact.payload())
}

// CreateInvoice submits an invoice document and returns its external id
func (c *Client) CreateInvoice(ctx context.Context, doc InvoiceDocument) (string, error) {
	return c.create(ctx, "/invoices", doc.payload())
}

func (c *Client) create(ctx context.Context, path string, payload interface{}) (string, error) {
	body, err := c.post(ctx, path, payload)
	if err != nil {
		return "", err
	}

	var created createdResponse
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return "", apperr.External("Accounting system returned an unexpected response", truncate(body), err)
	}
	return created.ID, nil
}

// statusError is a non-2xx answer. 4xx answers do not trip the breaker.
type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("accounting API returned status %d", e.status)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal accounting payload: %w", err)
	}

	var (
		respBody  []byte
		clientErr *statusError
	)
	err = c.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 500:
			return &statusError{status: resp.StatusCode, body: respBody}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			clientErr = &statusError{status: resp.StatusCode, body: respBody}
		}
		return nil
	})

	if err == nil && clientErr != nil {
		err = clientErr
	}
	c.track(err)

	if err == nil {
		return respBody, nil
	}

	c.log.WithFields(logrus.Fields{"path": path}).WithError(err).Warn("Accounting request failed")

	var se *statusError
	switch {
	case errors.As(err, &se):
		return nil, apperr.External("Accounting system rejected the request", truncate(se.body), err)
	case errors.Is(err, utils.ErrCircuitOpen), errors.Is(err, utils.ErrTooManyRequests):
		return nil, apperr.External("Accounting system temporarily unavailable", "", err)
	default:
		return nil, apperr.External("Accounting system unreachable", "", err)
	}
}

func (c *Client) track(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err != nil {
		c.lastError = err
		return
	}
	c.lastSuccess = time.Now()
	c.lastError = nil
}

// GetStatus reports breaker state and the outcome of the last call
func (c *Client) GetStatus() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	status := map[string]interface{}{
		"endpoint":      c.baseURL,
		"circuit_state": c.breaker.GetState(),
		"last_success":  c.lastSuccess,
	}
	if c.lastError != nil {
		status["last_error"] = c.lastError.Error()
	}
	return status
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}
