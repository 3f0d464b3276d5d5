// Package httpagent provides an agent backed by a remote HTTP completion
// endpoint. The endpoint receives {"prompt": ...} and answers with
// {"text": ...}; anything LLM-specific lives behind that contract.
package httpagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/planbook/planbook/pkg/protocol"
)

const defaultTimeout = 120 * time.Second

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "http"
}

func (*Factory) Create(config map[string]any) (protocol.Agent, error) {
	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		return nil, fmt.Errorf("http agent requires an endpoint")
	}

	name, _ := config["name"].(string)
	if name == "" {
		name = "http"
	}

	timeout := defaultTimeout
	if seconds, ok := config["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	headers := make(map[string]string)
	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersConfig {
			if str, ok := v.(string); ok {
				headers[k] = str
			}
		}
	}

	return &Agent{
		name:     name,
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type Agent struct {
	name     string
	endpoint string
	headers  map[string]string
	client   *http.Client
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) Call(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create agent request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read agent response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		Text string `json:"text"`
	}

	if err := json.Unmarshal(raw, &body); err != nil || body.Text == "" {
		// Endpoints that answer plain text are accepted as-is.
		return string(raw), nil
	}

	return body.Text, nil
}
