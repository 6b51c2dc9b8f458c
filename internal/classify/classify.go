// File: internal/classify/classify.go

// Package classify decides whether an action response represents a completed
// check-in. The remote service does not document its response contract, so the
// decision is a tiered heuristic: explicit structured signals win, then
// message keywords, then the bare HTTP status.
package classify

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

// Classification tiers, strongest first.
const (
	TierStructured = "structured"
	TierKeyword    = "keyword"
	TierHTTPStatus = "http-status"
	TierNone       = "none"
)

// Verdict is the outcome of classifying one action response.
type Verdict struct {
	Success bool
	Tier    string
	Reason  string
}

// Classifier applies the tiered success heuristic. Safe for concurrent use.
type Classifier struct {
	keywords []string
	strict   bool
}

// New builds a classifier from configuration.
func New(cfg config.ClassifyConfig) *Classifier {
	return &Classifier{keywords: cfg.SuccessKeywords, strict: cfg.StrictMode}
}

// Classify inspects the action channel result. A transport-level failure is
// reported with statusCode -1 and is never a success. In strict mode only an
// explicit success flag counts; the code fields, keywords and 2xx fallback
// are all skipped.
func (c *Classifier) Classify(statusCode int, body string) Verdict {
	if statusCode < 0 {
		return Verdict{Success: false, Tier: TierNone, Reason: "transport failure, no response received"}
	}

	payload := parsePayload(body)
	if v, decided := c.classifyFlag(payload); decided {
		return v
	}
	if c.strict {
		return Verdict{Success: false, Tier: TierNone, Reason: "strict mode: no explicit success flag"}
	}
	if v, decided := c.classifyCode(payload); decided {
		return v
	}

	if kw, ok := c.matchKeyword(body); ok {
		return Verdict{Success: true, Tier: TierKeyword, Reason: fmt.Sprintf("response contains keyword %q", kw)}
	}

	if statusCode >= 200 && statusCode < 300 {
		return Verdict{Success: true, Tier: TierHTTPStatus, Reason: fmt.Sprintf("no body signal, accepting HTTP %d", statusCode)}
	}
	return Verdict{Success: false, Tier: TierNone, Reason: fmt.Sprintf("no success signal, HTTP %d", statusCode)}
}

// classifyFlag evaluates the explicit success flag fields. The second return
// is true when a flag was present and decisive either way.
func (c *Classifier) classifyFlag(payload map[string]interface{}) (Verdict, bool) {
	if payload == nil {
		return Verdict{}, false
	}
	for _, field := range []string{"success", "ok"} {
		v, present := payload[field]
		if !present {
			continue
		}
		flag, ok := flagValue(v)
		if !ok {
			continue
		}
		if flag {
			return Verdict{Success: true, Tier: TierStructured, Reason: fmt.Sprintf("field %q is %v", field, v)}, true
		}
		// An explicit false may still be a benign "already done" reply;
		// let the message keywords decide before declaring failure.
		if kw, hit := c.matchKeyword(messageText(payload)); hit && !c.strict {
			return Verdict{Success: true, Tier: TierKeyword, Reason: fmt.Sprintf("message contains keyword %q", kw)}, true
		}
		return Verdict{Success: false, Tier: TierStructured, Reason: fmt.Sprintf("field %q is %v", field, v)}, true
	}
	return Verdict{}, false
}

// classifyCode evaluates the numeric and string code fields.
func (c *Classifier) classifyCode(payload map[string]interface{}) (Verdict, bool) {
	if payload == nil {
		return Verdict{}, false
	}
	for _, field := range []string{"code", "ret", "status"} {
		v, present := payload[field]
		if !present {
			continue
		}
		if n, ok := numericValue(v); ok {
			if n == 0 || n == 200 {
				return Verdict{Success: true, Tier: TierStructured, Reason: fmt.Sprintf("field %q is %d", field, n)}, true
			}
			if kw, hit := c.matchKeyword(messageText(payload)); hit {
				return Verdict{Success: true, Tier: TierKeyword, Reason: fmt.Sprintf("message contains keyword %q", kw)}, true
			}
			return Verdict{Success: false, Tier: TierStructured, Reason: fmt.Sprintf("field %q is %d", field, n)}, true
		}
		if s, ok := v.(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "0", "200", "success", "ok":
				return Verdict{Success: true, Tier: TierStructured, Reason: fmt.Sprintf("field %q is %q", field, s)}, true
			}
		}
	}
	return Verdict{}, false
}

// parsePayload decodes the body as a JSON object, nil when it is not one.
func parsePayload(body string) map[string]interface{} {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &payload); err != nil {
		return nil
	}
	return payload
}

// flagValue coerces a success flag field. The service has been seen encoding
// the flag as a bool, the strings "true"/"1", and bare numbers.
func flagValue(v interface{}) (bool, bool) {
	switch f := v.(type) {
	case bool:
		return f, true
	case string:
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "true", "1":
			return true, true
		}
		return false, true
	case float64:
		return f == 1, true
	}
	return false, false
}

// matchKeyword reports the first configured success keyword found in text.
func (c *Classifier) matchKeyword(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, kw := range c.keywords {
		if kw != "" && strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// messageText collects the human-readable fields of a structured response.
func messageText(payload map[string]interface{}) string {
	var parts []string
	for _, field := range []string{"msg", "message", "detail", "data"} {
		if s, ok := payload[field].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// numericValue normalizes JSON numbers to an int for code comparison.
func numericValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case int:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}
