// Package filewrite provides a tool that writes node data to a local file.
package filewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/planbook/planbook/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "file_write"
}

func (*Factory) Create(config map[string]any) (protocol.Tool, error) {
	directory, _ := config["directory"].(string)
	if directory == "" {
		directory = os.TempDir()
	}

	overwrite, _ := config["overwrite"].(bool)

	return &Tool{directory: directory, overwrite: overwrite}, nil
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_name": map[string]any{
				"type":        "string",
				"description": "Name of the file to write.",
			},
			"content": map[string]any{
				"description": "Data to write. Serialized as indented JSON unless already a string.",
			},
		},
		"required": []string{"file_name", "content"},
	}
}

type Tool struct {
	directory string
	overwrite bool
}

func (*Tool) Name() string {
	return "file_write"
}

func (t *Tool) Execute(_ context.Context, params map[string]any) (*protocol.ToolResult, error) {
	fileName, _ := params["file_name"].(string)
	if fileName == "" {
		return nil, fmt.Errorf("file_write tool requires a file_name parameter")
	}

	var data []byte

	switch content := params["content"].(type) {
	case string:
		data = []byte(content)
	default:
		encoded, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal content to JSON: %w", err)
		}

		data = encoded
	}

	fullPath := filepath.Join(t.directory, fileName)

	if !t.overwrite {
		if _, err := os.Stat(fullPath); err == nil {
			return &protocol.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("file '%s' already exists and overwrite is false", fullPath),
			}, nil
		}
	}

	if err := os.MkdirAll(t.directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", t.directory, err)
	}

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file %s: %w", fullPath, err)
	}

	return &protocol.ToolResult{
		Success: true,
		Output: map[string]any{
			"path":  fullPath,
			"bytes": len(data),
		},
	}, nil
}
