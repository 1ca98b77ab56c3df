package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

// ServiceClient handles HTTP communication with one backend service
type ServiceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// ServiceClients holds all service clients
type ServiceClients struct {
	AuthService    *ServiceClient
	TenantService  *ServiceClient
	BillingService *ServiceClient
	VoiceService   *ServiceClient
}

// NewServiceClient creates a new service client
func NewServiceClient(name, baseURL string, timeout time.Duration) *ServiceClient {
	return &ServiceClient{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ProxyRequest forwards the request unchanged apart from the identity headers
// taken from the verified token
func (sc *ServiceClient) ProxyRequest(c *gin.Context) {
	targetURL := sc.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	var body io.Reader
	if c.Request.Body != nil {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.BadRequestResponse(c, "Failed to read request body")
			return
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to create request")
		return
	}

	for key, values := range c.Request.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	// never trust identity headers sent by the client
	req.Header.Del("X-User-ID")
	req.Header.Del("X-Tenant-ID")
	req.Header.Del("X-User-Email")
	req.Header.Del("X-Super-Admin")
	if userID := c.GetString("user_id"); userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-Tenant-ID", c.GetString("tenant_id"))
		req.Header.Set("X-User-Email", c.GetString("email"))
		req.Header.Set("X-Super-Admin", strconv.FormatBool(c.GetBool("is_super_admin")))
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		utils.RespondError(c, apperr.External(fmt.Sprintf("Failed to communicate with %s", sc.name), "", err))
		return
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		utils.RespondError(c, apperr.External(fmt.Sprintf("Failed to read response from %s", sc.name), "", err))
		return
	}

	for key, values := range resp.Header {
		if key == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Writer.Header().Add(key, value)
		}
	}

	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), responseBody)
}

// HealthCheck checks if a service is healthy
func (sc *ServiceClient) HealthCheck() error {
	req, err := http.NewRequest(http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	return nil
}

func (scs *ServiceClients) all() []*ServiceClient {
	return []*ServiceClient{scs.AuthService, scs.TenantService, scs.BillingService, scs.VoiceService}
}

// GetServiceStatus returns the health of every backend and whether all of them
// are up
func (scs *ServiceClients) GetServiceStatus() (map[string]interface{}, bool) {
	status := make(map[string]interface{})
	healthy := true

	for _, client := range scs.all() {
		if err := client.HealthCheck(); err != nil {
			healthy = false
			status[client.name] = map[string]interface{}{
				"healthy": false,
				"error":   err.Error(),
			}
			continue
		}
		status[client.name] = map[string]interface{}{
			"healthy": true,
		}
	}

	return status, healthy
}
