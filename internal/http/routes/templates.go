package routes

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/briangreenhill/communitysite/internal/content"
)

// Funcs are the helpers available to every page template
func Funcs() template.FuncMap {
	return template.FuncMap{
		"value":     fieldValue,
		"locations": func() []content.Location { return content.Locations },
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
		"date":      displayDate,
	}
}

// ParseTemplates loads the page templates matching pattern
func ParseTemplates(pattern string) (*template.Template, error) {
	return template.New("").Funcs(Funcs()).ParseGlob(pattern)
}

// fieldValue returns the named JSON column of rec for admin forms and lists
func fieldValue(rec any, name string) string {
	raw, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return ""
	}
	switch v := row[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func displayDate(s string) string {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("Mon 2 Jan 2006")
		}
	}
	return s
}
