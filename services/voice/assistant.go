package main

import (
	"bytes"
	"context"
	"encoding/json"
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

// fallbackReply is spoken when the assistant cannot be reached
const fallbackReply = "Entschuldigung, ich konnte Ihre Anfrage nicht verarbeiten."

// AssistantRequest is what the assistant gets for one utterance
type AssistantRequest struct {
	TenantID        string `json:"tenant_id"`
	UserID          string `json:"user_id"`
	Transcription   string `json:"transcription"`
	CalendarContext string `json:"calendar_context"`
}

// AssistantReply is the assistant's answer. CalendarAction is passed through
// untouched.
type AssistantReply struct {
	Response       string          `json:"response"`
	CalendarAction json.RawMessage `json:"calendar_action,omitempty"`
}

// Assistant produces replies to transcribed speech
type Assistant interface {
	Respond(ctx context.Context, req AssistantRequest) (*AssistantReply, error)
}

// AssistantClient talks to the speech assistant over HTTP
type AssistantClient struct {
	endpoint    string
	httpClient  *http.Client
	breaker     *utils.CircuitBreaker
	log         *logrus.Entry
	connected   bool
	lastSuccess time.Time
	lastError   error
	mutex       sync.RWMutex
}

// NewAssistantClient creates a client with a breaker that opens after 5
// consecutive failures for 30 seconds
func NewAssistantClient(cfg *config.AssistantConfig, log *logrus.Entry) *AssistantClient {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	breaker := utils.NewCircuitBreaker("assistant", 5, 30*time.Second)
	breaker.OnStateChange = func(name string, from, to utils.CircuitState) {
		log.WithFields(logrus.Fields{"breaker": name, "from": from, "to": to}).Warn("Circuit breaker state changed")
	}

	return &AssistantClient{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		log:        log,
	}
}

// Respond posts the utterance to /respond
func (c *AssistantClient) Respond(ctx context.Context, request AssistantRequest) (*AssistantReply, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assistant request: %w", err)
	}

	var reply AssistantReply
	err = c.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/respond", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", request.TenantID)
		req.Header.Set("X-User-ID", request.UserID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to reach assistant: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read assistant response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apperr.External(fmt.Sprintf("Assistant returned status %d", resp.StatusCode), string(body), nil)
		}
		if err := json.Unmarshal(body, &reply); err != nil {
			return apperr.External("Assistant returned an unexpected response", string(body), err)
		}
		return nil
	})

	c.track(err)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *AssistantClient) track(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err != nil {
		c.lastError = err
		return
	}
	c.connected = true
	c.lastSuccess = time.Now()
	c.lastError = nil
}

// GetStatus returns the current connection status
func (c *AssistantClient) GetStatus() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	status := map[string]interface{}{
		"connected":     c.connected,
		"endpoint":      c.endpoint,
		"circuit_state": c.breaker.GetState(),
		"last_success":  c.lastSuccess,
	}
	if c.lastError != nil {
		status["last_error"] = c.lastError.Error()
	}
	return status
}

// Ping checks the assistant's /health endpoint
func (c *AssistantClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("health check failed: %w", err)
		c.track(err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("health check returned status %d", resp.StatusCode)
		c.track(err)
		return err
	}

	c.track(nil)
	return nil
}
