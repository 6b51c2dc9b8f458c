// File: internal/classify/classify_test.go
package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

func newClassifier(strict bool) *Classifier {
	return New(config.ClassifyConfig{
		SuccessKeywords: []string{"成功", "已签到", "签到成功", "签到"},
		StrictMode:      strict,
	})
}

func TestClassifyTransportFailureNeverSucceeds(t *testing.T) {
	v := newClassifier(false).Classify(-1, `{"success": true}`)
	assert.False(t, v.Success)
	assert.Equal(t, TierNone, v.Tier)
}

func TestClassifyStructuredBooleans(t *testing.T) {
	c := newClassifier(false)

	v := c.Classify(200, `{"success": true, "data": {}}`)
	assert.True(t, v.Success)
	assert.Equal(t, TierStructured, v.Tier)

	v = c.Classify(200, `{"ok": true}`)
	assert.True(t, v.Success)

	v = c.Classify(200, `{"success": false, "msg": "wrong credentials"}`)
	assert.False(t, v.Success)
	assert.Equal(t, TierStructured, v.Tier)
}

func TestClassifyStringSuccessFlag(t *testing.T) {
	c := newClassifier(false)

	// The flag arrives as a string on some deployments; a non-2xx status
	// must not override it.
	for _, body := range []string{
		`{"success": "true"}`,
		`{"success": "1"}`,
		`{"ok": "TRUE"}`,
	} {
		v := c.Classify(500, body)
		assert.True(t, v.Success, "body=%s", body)
		assert.Equal(t, TierStructured, v.Tier, "body=%s", body)
	}

	v := c.Classify(200, `{"success": "false"}`)
	assert.False(t, v.Success)
	assert.Equal(t, TierStructured, v.Tier)

	v = c.Classify(200, `{"success": "nope"}`)
	assert.False(t, v.Success)
	assert.Equal(t, TierStructured, v.Tier)
}

func TestClassifyStructuredCodes(t *testing.T) {
	c := newClassifier(false)

	for _, body := range []string{
		`{"code": 0}`,
		`{"code": 200}`,
		`{"ret": 0, "msg": "done"}`,
		`{"status": "success"}`,
		`{"status": "0"}`,
	} {
		v := c.Classify(200, body)
		assert.True(t, v.Success, "body=%s", body)
		assert.Equal(t, TierStructured, v.Tier, "body=%s", body)
	}

	v := c.Classify(200, `{"code": 1, "msg": "quota exceeded"}`)
	assert.False(t, v.Success)
	assert.Equal(t, TierStructured, v.Tier)
}

func TestClassifyAlreadyDoneMessageOverridesFailureField(t *testing.T) {
	c := newClassifier(false)

	// The service reports a nominal failure when the action was already
	// performed today. The message keyword still counts as success.
	v := c.Classify(200, `{"success": false, "msg": "今日已签到"}`)
	assert.True(t, v.Success)
	assert.Equal(t, TierKeyword, v.Tier)

	v = c.Classify(200, `{"code": 409, "message": "签到成功"}`)
	assert.True(t, v.Success)
	assert.Equal(t, TierKeyword, v.Tier)
}

func TestClassifyRawKeyword(t *testing.T) {
	c := newClassifier(false)

	v := c.Classify(200, "<html><body>签到成功!</body></html>")
	assert.True(t, v.Success)
	assert.Equal(t, TierKeyword, v.Tier)
}

func TestClassifyHTTPStatusFallback(t *testing.T) {
	c := newClassifier(false)

	v := c.Classify(204, "")
	assert.True(t, v.Success)
	assert.Equal(t, TierHTTPStatus, v.Tier)

	v = c.Classify(403, "forbidden")
	assert.False(t, v.Success)
	assert.Equal(t, TierNone, v.Tier)
}

func TestClassifyStrictMode(t *testing.T) {
	c := newClassifier(true)

	v := c.Classify(200, `{"success": true}`)
	assert.True(t, v.Success)

	// Keywords and 2xx fallbacks do not count in strict mode.
	v = c.Classify(200, "签到成功")
	assert.False(t, v.Success)

	v = c.Classify(204, "")
	assert.False(t, v.Success)

	v = c.Classify(200, `{"success": false, "msg": "已签到"}`)
	assert.False(t, v.Success)

	v = c.Classify(200, `{"success": "true"}`)
	assert.True(t, v.Success)
}

func TestClassifyStrictModeIgnoresCodeFields(t *testing.T) {
	c := newClassifier(true)

	// Only the explicit flag counts in strict mode; a bare code field is a
	// weaker signal and is skipped.
	for _, body := range []string{
		`{"code": 200}`,
		`{"code": 0}`,
		`{"ret": 0}`,
		`{"status": "success"}`,
	} {
		v := c.Classify(200, body)
		assert.False(t, v.Success, "body=%s", body)
		assert.Equal(t, TierNone, v.Tier, "body=%s", body)
	}
}

func TestClassifyNonObjectBodies(t *testing.T) {
	c := newClassifier(false)

	v := c.Classify(200, `[1, 2, 3]`)
	assert.True(t, v.Success)
	assert.Equal(t, TierHTTPStatus, v.Tier)

	v = c.Classify(500, "internal error")
	assert.False(t, v.Success)
}
