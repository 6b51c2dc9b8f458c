// File: internal/notify/preview.go
package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	json "github.com/json-iterator/go"
)

// Preview renders a response body for inclusion in a notification: JSON
// bodies are pretty-printed, then the result is truncated to the byte limit
// with a marker naming the original length. A non-positive limit suppresses
// the preview entirely.
func Preview(body string, limit int) string {
	if limit <= 0 {
		return ""
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	pretty := body
	var decoded interface{}
	if err := json.Unmarshal([]byte(body), &decoded); err == nil && decoded != nil {
		if b, err := json.MarshalIndent(decoded, "", "  "); err == nil {
			pretty = string(b)
		}
	}

	if len(pretty) <= limit {
		return pretty
	}

	cut := limit
	// Back off to a rune boundary so CJK text is not split mid-character.
	for cut > 0 && !utf8.RuneStart(pretty[cut]) {
		cut--
	}
	return pretty[:cut] + fmt.Sprintf("\n... [truncated, %d bytes total, limit %d]", len(pretty), limit)
}
