package httpreq

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()
	assert.Equal(t, "http_request", factory.ID())
}

func TestExecute_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer server.Close()

	tool, err := NewFactory().Create(nil)
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	require.True(t, result.Success)

	output, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, output["status_code"])
	assert.Equal(t, map[string]any{"status": "ok"}, output["body"])
}

func TestExecute_PostWithBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query": "report"}`, string(body))

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	tool, err := NewFactory().Create(nil)
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{
		"url":    server.URL,
		"method": "POST",
		"body":   `{"query": "report"}`,
		"headers": map[string]any{
			"Content-Type": "application/json",
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecute_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	tool, err := NewFactory().Create(nil)
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "500")
}

func TestExecute_NonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	tool, err := NewFactory().Create(nil)
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)

	output, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "plain text", output["body"])
}

func TestExecute_MissingURL(t *testing.T) {
	tool, err := NewFactory().Create(nil)
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}
