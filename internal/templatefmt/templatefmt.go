package templatefmt

import (
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"alertengine/internal/domain"
)

// MissingFieldPlaceholder substitutes absent context fields in rendered text.
const MissingFieldPlaceholder = "n/a"

// FuncMap returns shared alert template helpers.
// Params: none.
// Returns: deterministic helper map used by message synthesis.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"field":       FieldValue,
		"fmtDuration": FormatDuration,
		"json":        MarshalJSON,
	}
}

// ParseAlertTemplate parses one alert text template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseAlertTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Parse(body)
}

// FieldValue reads one typed context field as display string.
// Params: notification context map and field key.
// Returns: string-coerced value or neutral placeholder when absent/empty.
func FieldValue(context map[string]domain.TypedValue, key string) string {
	value, ok := context[key]
	if !ok {
		return MissingFieldPlaceholder
	}
	rendered := value.AsString()
	if rendered == "" {
		return MissingFieldPlaceholder
	}
	return rendered
}

// FormatDuration renders duration in compact human form with one decimal precision.
// Params: template value expected as time.Duration or *time.Duration.
// Returns: formatted duration string.
func FormatDuration(value any) string {
	var duration time.Duration
	switch typed := value.(type) {
	case time.Duration:
		duration = typed
	case *time.Duration:
		if typed == nil {
			return "0.0s"
		}
		duration = *typed
	default:
		return "0.0s"
	}

	if duration < 0 {
		duration = -duration
	}
	seconds := duration.Seconds()
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%.1fh", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fs", seconds)
	}
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
