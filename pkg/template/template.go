// Package template provides templating functionality for dynamic task inputs.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Render executes templateStr against data. Results that look like JSON,
// numbers, or booleans are re-parsed so tools receive structured values
// instead of strings.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("inputs").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var parsed any
		if err := json.Unmarshal([]byte(result), &parsed); err == nil {
			return parsed, nil
		}
	}

	if n, err := strconv.ParseFloat(result, 64); err == nil {
		return n, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderInputs renders every string value of a task's input map against the
// run environment. Non-string values and strings without template syntax
// pass through untouched.
func RenderInputs(inputs map[string]any, data map[string]any) (map[string]any, error) {
	if len(inputs) == 0 {
		return inputs, nil
	}

	enhanced := make(map[string]any, len(data)+1)
	for k, v := range data {
		enhanced[k] = v
	}

	enhanced["env"] = getEnvVars()

	rendered := make(map[string]any, len(inputs))

	for key, value := range inputs {
		str, ok := value.(string)
		if !ok || !NeedsTemplating(str) {
			rendered[key] = value

			continue
		}

		result, err := Render(str, enhanced)
		if err != nil {
			return nil, fmt.Errorf("failed to render input %q: %w", key, err)
		}

		rendered[key] = result
	}

	return rendered, nil
}

// NeedsTemplating checks if a string contains template syntax.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
