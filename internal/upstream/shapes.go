package upstream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the canonical analysis payload every upstream response shape is
// normalized into before it leaves this package.
type Result struct {
	Success     bool     `json:"success"`
	Text        string   `json:"text"`
	SourceLinks []string `json:"source_links"`
}

// shapeMatcher attempts to read one historically-observed response shape out
// of a raw payload. Matchers are tried in order; the first match wins.
type shapeMatcher struct {
	name  string
	match func(raw json.RawMessage) (Result, bool)
}

// The analyzer has shipped three response shapes over time: a nested data
// object, a flat object, and a debug variant that is any non-empty text.
func shapeMatchers(allowDebug bool) []shapeMatcher {
	matchers := []shapeMatcher{
		{name: "nested-data", match: matchNestedData},
		{name: "flat", match: matchFlat},
	}
	if allowDebug {
		matchers = append(matchers, shapeMatcher{name: "debug-any-text", match: matchDebugText})
	}
	return matchers
}

// Normalize converts a raw completed-job payload into the canonical Result.
// Returns ErrInvalidShape when no matcher accepts the payload. The debug
// matcher can be disabled per environment via allowDebug.
func Normalize(raw json.RawMessage, allowDebug bool) (Result, error) {
	for _, m := range shapeMatchers(allowDebug) {
		if result, ok := m.match(raw); ok {
			return result, nil
		}
	}
	return Result{}, fmt.Errorf("%w: no known shape matches payload", ErrInvalidShape)
}

// matchNestedData reads {"data": {"ai_overview_text": ..., "source_links": [...]}}.
func matchNestedData(raw json.RawMessage) (Result, bool) {
	var resp struct {
		Data *struct {
			Text        string   `json:"ai_overview_text"`
			SourceLinks []string `json:"source_links"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Data == nil {
		return Result{}, false
	}
	if strings.TrimSpace(resp.Data.Text) == "" {
		return Result{}, false
	}
	return Result{Success: true, Text: resp.Data.Text, SourceLinks: resp.Data.SourceLinks}, true
}

// matchFlat reads {"ai_overview_text": ..., "source_links": [...]} or the
// legacy {"content": ...} spelling.
func matchFlat(raw json.RawMessage) (Result, bool) {
	var resp struct {
		Text        string   `json:"ai_overview_text"`
		Content     string   `json:"content"`
		SourceLinks []string `json:"source_links"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, false
	}
	text := resp.Text
	if strings.TrimSpace(text) == "" {
		text = resp.Content
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, false
	}
	return Result{Success: true, Text: text, SourceLinks: resp.SourceLinks}, true
}

// matchDebugText accepts any payload with a non-empty string under "data",
// or a bare JSON string. Debug builds of the analyzer return these.
func matchDebugText(raw json.RawMessage) (Result, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && strings.TrimSpace(asString) != "" {
		return Result{Success: true, Text: asString}, true
	}
	var resp struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err == nil && strings.TrimSpace(resp.Data) != "" {
		return Result{Success: true, Text: resp.Data}, true
	}
	return Result{}, false
}
