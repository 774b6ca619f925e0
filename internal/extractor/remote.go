package extractor

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteExtractor calls an external spreadsheet-extraction HTTP service.
type RemoteExtractor struct {
	client   *resty.Client
	endpoint string
}

// RemoteConfig holds configuration for the extraction service client.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewRemoteExtractor creates a client for the extraction service.
// Parameters:
//   - cfg: extractor configuration including base URL and API key.
//
// Returns:
//   - *RemoteExtractor: initialized client wrapper.
func NewRemoteExtractor(cfg *RemoteConfig) *RemoteExtractor {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetHeader("Content-Type", "application/json")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	return &RemoteExtractor{
		client:   client,
		endpoint: cfg.BaseURL + "/v1/extract",
	}
}

type extractRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"` // base64-encoded workbook
}

type extractResponse struct {
	Fields map[string]FieldValue `json:"fields"`
	Errors map[string]string     `json:"errors"`
	Error  string                `json:"error,omitempty"`
}

// Extract posts the workbook to the extraction service and returns the
// parsed field set. A non-2xx response or transport failure is returned
// as an error; per-field parse failures come back in Result.Errors.
func (e *RemoteExtractor) Extract(ctx context.Context, path string, data io.Reader) (*Result, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}

	req := extractRequest{
		Path:    path,
		Content: base64.StdEncoding.EncodeToString(content),
	}

	var resp extractResponse
	httpResp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(e.endpoint)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("extraction service returned %d: %s", httpResp.StatusCode(), httpResp.String())
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("extraction service error: %s", resp.Error)
	}

	result := &Result{Fields: resp.Fields, Errors: resp.Errors}
	if result.Fields == nil {
		result.Fields = map[string]FieldValue{}
	}
	if result.Errors == nil {
		result.Errors = map[string]string{}
	}
	return result, nil
}
