// Package log provides a tool that records its parameters to the logger.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planbook/planbook/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "log"
}

func (*Factory) Create(config map[string]any) (protocol.Tool, error) {
	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Tool{level: level}, nil
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating.",
			},
		},
		"required": []string{"message"},
	}
}

type Tool struct {
	level string
}

func (*Tool) Name() string {
	return "log"
}

func (t *Tool) Execute(ctx context.Context, params map[string]any) (*protocol.ToolResult, error) {
	message := fmt.Sprintf("%v", params["message"])

	logger := slog.With("module", "log_tool")

	switch t.level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return &protocol.ToolResult{
		Success: true,
		Output:  map[string]any{"message": message},
	}, nil
}
