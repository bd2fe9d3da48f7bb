package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goodtune/usagereporter/internal/api"
	"github.com/goodtune/usagereporter/internal/config"
)

const clientTimeout = 30 * time.Second

// apiClient talks to a running daemon's control API.
type apiClient struct {
	base string
	http *http.Client
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func newAPIClient() *apiClient {
	return &apiClient{
		base: resolveAPIURL(),
		http: &http.Client{Timeout: clientTimeout},
	}
}

// resolveAPIURL prefers --api, then the configured listener, then the
// built-in default.
func resolveAPIURL() string {
	if apiURL != "" {
		return strings.TrimRight(apiURL, "/")
	}

	host, port := "127.0.0.1", 8470
	if cfg, err := config.Load(configPath); err == nil {
		port = cfg.Server.APIPort
		if cfg.Server.BindAddress != "" && cfg.Server.BindAddress != "0.0.0.0" {
			host = cfg.Server.BindAddress
		}
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// do sends a JSON request. Non-2xx answers carrying an error body are
// returned as *APIError; any other body is decoded into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api/v1"+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("is the usagereporter daemon running at %s? %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code != 0 {
			return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
