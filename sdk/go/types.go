package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Tenants     int    `json:"tenants"`
}

// RegistryStats mirrors the public JSON surface of the registry stats route.
type RegistryStats struct {
	Total      int            `json:"total"`
	ByPlatform map[string]int `json:"by_platform"`
	Tenants    []string       `json:"tenants"`
}

// Validation errors returned before any request is made.
var (
	ErrEmptyUserID   = errors.New("user id is required")
	ErrEmptyTenantID = errors.New("tenant id is required")
)

// APIError is a structured error response from the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("request failed: status %d", resp.StatusCode)
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
