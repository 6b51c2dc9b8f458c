// File: internal/config/config_test.go
package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("credentials.identity", "user@example.com")
	v.Set("credentials.secret", "hunter22hunter22")
	return v
}

func TestNewFromViperDefaults(t *testing.T) {
	cfg, err := NewFromViper(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, "https://anyrouter.top", cfg.Target.BaseURL)
	assert.Equal(t, "/api/user/sign_in", cfg.Target.ActionPath)
	assert.Equal(t, ModeBrowser, cfg.Target.LoginMode)
	assert.Equal(t, "email", cfg.Target.IdentityField)
	assert.Equal(t, "password", cfg.Target.SecretField)
	assert.Equal(t, 15, cfg.HTTP.TimeoutSeconds)
	assert.True(t, cfg.HTTP.VerifyTLS)
	assert.Equal(t, 1, cfg.Retry.Budget)
	assert.Equal(t, 2, cfg.Retry.IntervalSeconds)
	assert.Contains(t, cfg.Classify.SuccessKeywords, "已签到")
	assert.Equal(t, 500, cfg.Notify.FailurePreviewLimit)
	assert.Equal(t, 0, cfg.Notify.SuccessPreviewLimit)
}

func TestValidateMissingCredentials(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	_, err := NewFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials.identity")
}

func TestValidateCookieModeRequiresToken(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("target.login_mode", ModeCookie)

	_, err := NewFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_token")

	v.Set("credentials.session_token", "abc123")
	cfg, err := NewFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "abc123", cfg.Credentials.SessionToken)
}

func TestValidateRejectsBadLoginMode(t *testing.T) {
	v := newTestViper(t)
	v.Set("target.login_mode", "carrier-pigeon")

	_, err := NewFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login_mode")
}

func TestTargetResolve(t *testing.T) {
	tgt := TargetConfig{BaseURL: "https://example.com/", ActionPath: "/api/user/sign_in"}

	assert.Equal(t, "https://example.com/api/user/sign_in", tgt.ActionURL())
	assert.Equal(t, "https://other.example/x", tgt.Resolve("https://other.example/x"))
}

func TestLoginPathCandidates(t *testing.T) {
	tgt := TargetConfig{}
	assert.Equal(t, []string{"/login", "/auth/login", "/signin"}, tgt.LoginPathCandidates())

	tgt.LoginPath = "/portal/login"
	assert.Equal(t, []string{"/portal/login", "/login", "/auth/login", "/signin"}, tgt.LoginPathCandidates())
}

func TestNewAPIUserValue(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		enabled bool
	}{
		{"1", "1", true},
		{"42", "42", true},
		{"", "", false},
		{"0", "", false},
		{"false", "", false},
		{"No", "", false},
		{"off", "", false},
	}
	for _, tc := range tests {
		v, ok := HTTPConfig{NewAPIUserHeader: tc.raw}.NewAPIUserValue()
		assert.Equal(t, tc.enabled, ok, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, v, "raw=%q", tc.raw)
	}
}

func TestViewportSize(t *testing.T) {
	w, h := BrowserConfig{Viewport: "1280x900"}.ViewportSize()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 900, h)

	w, h = BrowserConfig{Viewport: "garbage"}.ViewportSize()
	assert.Zero(t, w)
	assert.Zero(t, h)

	w, h = BrowserConfig{Viewport: "-10x20"}.ViewportSize()
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "******", MaskSecret("secret"))
	assert.Equal(t, "abcdef***uvwxyz", MaskSecret("abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "", MaskSecret(""))
}

func TestParseHeaderSpecJSON(t *testing.T) {
	h, err := ParseHeaderSpec(`{"X-Token": "abc", "X-Num": 7}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", h["X-Token"])
	assert.Equal(t, "7", h["X-Num"])

	_, err = ParseHeaderSpec(`{"broken`)
	assert.Error(t, err)
}

func TestParseHeaderSpecPairs(t *testing.T) {
	h, err := ParseHeaderSpec("X-A=1; X-B: two\n# comment\nX-C = 3 ")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-A": "1", "X-B": "two", "X-C": "3"}, h)

	h, err = ParseHeaderSpec("")
	require.NoError(t, err)
	assert.Empty(t, h)
}
