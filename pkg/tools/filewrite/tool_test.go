package filewrite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()
	assert.Equal(t, "file_write", factory.ID())
}

func TestExecute_WritesString(t *testing.T) {
	dir := t.TempDir()

	tool, err := NewFactory().Create(map[string]any{"directory": dir})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{
		"file_name": "notes.txt",
		"content":   "hello",
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	output, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, output["bytes"])
}

func TestExecute_SerializesStructuredContent(t *testing.T) {
	dir := t.TempDir()

	tool, err := NewFactory().Create(map[string]any{"directory": dir})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{
		"file_name": "result.json",
		"content":   map[string]any{"status": "done"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	data, err := os.ReadFile(filepath.Join(dir, "result.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "done"}`, string(data))
}

func TestExecute_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "taken.txt")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	tool, err := NewFactory().Create(map[string]any{"directory": dir})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{
		"file_name": "taken.txt",
		"content":   "replacement",
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "already exists")

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestExecute_OverwriteEnabled(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "taken.txt")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	tool, err := NewFactory().Create(map[string]any{
		"directory": dir,
		"overwrite": true,
	})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{
		"file_name": "taken.txt",
		"content":   "replacement",
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "replacement", string(data))
}

func TestExecute_MissingFileName(t *testing.T) {
	tool, err := NewFactory().Create(map[string]any{"directory": t.TempDir()})
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), map[string]any{"content": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file_name")
}
