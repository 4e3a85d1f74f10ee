// Package templatefmt parses and renders run report templates.
package templatefmt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// FuncMap returns helpers available to report templates.
// Params: none.
// Returns: deterministic helper map shared by config validation and rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtDuration": FormatDuration,
		"json":        MarshalJSON,
		"join":        strings.Join,
		"yesno":       YesNo,
	}
}

// ParseReportTemplate parses one run report template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseReportTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// Render executes a compiled template into a string.
// Params: compiled template and data.
// Returns: rendered text with surrounding whitespace trimmed.
func Render(tmpl *template.Template, data any) (string, error) {
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(out.String()), nil
}

var durationUnits = []struct {
	size   time.Duration
	suffix string
}{
	{time.Hour, "h"},
	{time.Minute, "m"},
}

// FormatDuration renders a duration with one decimal in the largest fitting unit.
// Params: time.Duration or *time.Duration; other values render as zero.
// Returns: compact duration such as "1.5s" or "2.0m".
func FormatDuration(value any) string {
	var duration time.Duration
	switch typed := value.(type) {
	case time.Duration:
		duration = typed
	case *time.Duration:
		if typed != nil {
			duration = *typed
		}
	}
	duration = duration.Abs()
	for _, unit := range durationUnits {
		if duration >= unit.size {
			return fmt.Sprintf("%.1f%s", float64(duration)/float64(unit.size), unit.suffix)
		}
	}
	return fmt.Sprintf("%.1fs", duration.Seconds())
}

// MarshalJSON renders value as JSON, or "null" when it cannot be encoded.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}

// YesNo renders a flag for humans.
func YesNo(flag bool) string {
	if flag {
		return "yes"
	}
	return "no"
}
