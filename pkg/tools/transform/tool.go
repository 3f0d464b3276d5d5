// Package transform provides a data transformation tool using Go template expressions.
package transform

import (
	"context"
	"fmt"

	"github.com/planbook/planbook/pkg/protocol"
	"github.com/planbook/planbook/pkg/template"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "transform"
}

func (*Factory) Create(_ map[string]any) (protocol.Tool, error) {
	return &Tool{}, nil
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"format":      "template",
				"description": "Go template expression applied to the data parameter.",
				"examples": []string{
					"{{.name}}",
					"{\"full_name\": \"{{.first}} {{.last}}\"}",
					"{{len .items}}",
				},
			},
			"data": map[string]any{
				"description": "Input data for the expression. Defaults to the whole parameter map.",
			},
		},
		"required": []string{"expression"},
	}
}

type Tool struct{}

func (*Tool) Name() string {
	return "transform"
}

func (*Tool) Execute(_ context.Context, params map[string]any) (*protocol.ToolResult, error) {
	expression, _ := params["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("transform tool requires an expression parameter")
	}

	data, ok := params["data"]
	if !ok {
		data = params
	}

	result, err := template.Render(expression, data)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	return &protocol.ToolResult{
		Success: true,
		Output:  result,
	}, nil
}
