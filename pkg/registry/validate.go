package registry

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateToolInputs checks a task's input map against the schema declared
// by the tool's factory. Tools without a registered schema accept anything.
func (r *Registry) ValidateToolInputs(toolID string, inputs map[string]any) error {
	schema, ok := r.ToolSchema(toolID)
	if !ok || len(schema) == 0 {
		return nil
	}

	if inputs == nil {
		inputs = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(inputs)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate inputs for tool %s: %w", toolID, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid inputs for tool %s: %s", toolID, strings.Join(details, "; "))
	}

	return nil
}
