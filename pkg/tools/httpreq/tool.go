// Package httpreq provides an HTTP request tool.
package httpreq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/planbook/planbook/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "http_request"
}

func (*Factory) Create(config map[string]any) (protocol.Tool, error) {
	timeout := defaultTimeout
	if seconds, ok := config["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Tool{
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL. Supports templating.",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method, defaults to GET.",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers.",
			},
		},
		"required": []string{"url"},
	}
}

type Tool struct {
	client *http.Client
}

func (*Tool) Name() string {
	return "http_request"
}

func (t *Tool) Execute(ctx context.Context, params map[string]any) (*protocol.ToolResult, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http_request tool requires a url parameter")
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader

	if body, ok := params["body"].(string); ok && body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if str, ok := v.(string); ok {
				req.Header.Set(k, str)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		decoded = string(raw)
	}

	result := &protocol.ToolResult{
		Success: resp.StatusCode < http.StatusBadRequest,
		Output: map[string]any{
			"status_code": resp.StatusCode,
			"body":        decoded,
		},
	}

	if !result.Success {
		result.Error = fmt.Sprintf("http request returned status %d", resp.StatusCode)
	}

	return result, nil
}
