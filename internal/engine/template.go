// Package engine provides template substitution for step content.
package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// tokenPattern matches {{key}} tokens, including dotted paths like
// {{orders.0.status}}.
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_][A-Za-z0-9_.]*)\s*\}\}`)

// RenderTemplate substitutes {{key}} tokens in content from the flow context.
// Dotted tokens resolve nested values. A missing key substitutes the empty
// string, never an error, so a template stays stable no matter what the
// context holds; repeated renders of the same inputs give the same output.
func RenderTemplate(content string, context map[string]any) string {
	if !strings.Contains(content, "{{") {
		return content
	}
	container := gabs.Wrap(context)
	return tokenPattern.ReplaceAllStringFunc(content, func(token string) string {
		key := tokenPattern.FindStringSubmatch(token)[1]
		value := container.Path(key)
		if value == nil || value.Data() == nil {
			return ""
		}
		return formatValue(value.Data())
	})
}

// formatValue renders a context value for message output. Structured values
// fall back to compact JSON.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}
