// File: internal/config/config.go
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/viper"
)

// Config holds the immutable configuration snapshot for one run. It is built
// once by NewFromViper and passed by reference into every component; nothing
// mutates it afterwards.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Target      TargetConfig      `mapstructure:"target" yaml:"target"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Retry       RetryConfig       `mapstructure:"retry" yaml:"retry"`
	Classify    ClassifyConfig    `mapstructure:"classify" yaml:"classify"`
	Notify      NotifyConfig      `mapstructure:"notify" yaml:"notify"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// CredentialsConfig carries the login identity and secret. The secret must
// never be rendered unmasked in any log or report; use Masked* accessors when
// echoing configuration.
type CredentialsConfig struct {
	Identity     string `mapstructure:"identity" yaml:"identity"`
	Secret       string `mapstructure:"secret" yaml:"-"`
	SessionToken string `mapstructure:"session_token" yaml:"-"`
}

// MaskedIdentity returns the identity with only a short head and tail visible.
func (c CredentialsConfig) MaskedIdentity() string { return MaskSecret(c.Identity) }

// Login modes selecting the authentication strategy chain.
const (
	ModeBrowser = "browser"
	ModeAPI     = "api"
	ModeCookie  = "cookie"
	ModeAuto    = "auto"
)

// TargetConfig describes the remote service endpoints.
type TargetConfig struct {
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	LoginPath     string `mapstructure:"login_path" yaml:"login_path"`
	LoginAPI      string `mapstructure:"login_api" yaml:"login_api"`
	IdentityField string `mapstructure:"identity_field" yaml:"identity_field"`
	SecretField   string `mapstructure:"secret_field" yaml:"secret_field"`
	ActionPath    string `mapstructure:"action_path" yaml:"action_path"`
	LoginMode     string `mapstructure:"login_mode" yaml:"login_mode"`
}

// Resolve joins a path with the base URL unless the path is already absolute.
func (t TargetConfig) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(t.BaseURL, "/") + path
}

// ActionURL returns the fully resolved action endpoint.
func (t TargetConfig) ActionURL() string { return t.Resolve(t.ActionPath) }

// LoginAPIURL returns the fully resolved API login endpoint.
func (t TargetConfig) LoginAPIURL() string { return t.Resolve(t.LoginAPI) }

// LoginPathCandidates returns the ordered login page candidates for the
// browser flow: an explicit override first, then the fixed fallback sequence.
func (t TargetConfig) LoginPathCandidates() []string {
	var paths []string
	if t.LoginPath != "" {
		paths = append(paths, t.LoginPath)
	}
	return append(paths, "/login", "/auth/login", "/signin")
}

// HTTPConfig tunes the direct HTTP channel and the headers sent on the action
// request from either channel.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	VerifyTLS        bool   `mapstructure:"verify_tls" yaml:"verify_tls"`
	UserAgent        string `mapstructure:"user_agent" yaml:"user_agent"`
	ExtraHeaders     string `mapstructure:"extra_headers" yaml:"extra_headers"`
	NewAPIUserHeader string `mapstructure:"new_api_user" yaml:"new_api_user"`
	PreWarm          bool   `mapstructure:"pre_warm" yaml:"pre_warm"`
}

// Timeout returns the configured request timeout as a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// NewAPIUserValue returns the value for the New-Api-User header and whether it
// should be sent at all. Empty, "0", "false", "no" and "off" disable it.
func (h HTTPConfig) NewAPIUserValue() (string, bool) {
	v := strings.TrimSpace(h.NewAPIUserHeader)
	switch strings.ToLower(v) {
	case "", "0", "false", "no", "off":
		return "", false
	}
	return v, true
}

// SelectorOverrides carries caller-supplied CSS selectors for the login form.
type SelectorOverrides struct {
	Identity string `mapstructure:"identity" yaml:"identity"`
	Secret   string `mapstructure:"secret" yaml:"secret"`
	Submit   string `mapstructure:"submit" yaml:"submit"`
}

// BrowserConfig holds settings for the automated browser instance.
type BrowserConfig struct {
	Headed       bool              `mapstructure:"headed" yaml:"headed"`
	SlowMotionMs int               `mapstructure:"slow_motion_ms" yaml:"slow_motion_ms"`
	Viewport     string            `mapstructure:"viewport" yaml:"viewport"`
	Selectors    SelectorOverrides `mapstructure:"selectors" yaml:"selectors"`
}

// ViewportSize parses the "WIDTHxHEIGHT" viewport string. A zero pair means
// the browser default should be kept.
func (b BrowserConfig) ViewportSize() (width, height int) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(b.Viewport)), "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0
	}
	return w, h
}

// RetryConfig bounds the attempt loop. Total attempts = 1 + Budget.
type RetryConfig struct {
	Budget          int `mapstructure:"budget" yaml:"budget"`
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

// Interval returns the fixed sleep between unsuccessful attempts.
func (r RetryConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// ClassifyConfig tunes the success classifier. The notion of success on the
// target service is a heuristic, so the keyword set stays configurable.
type ClassifyConfig struct {
	SuccessKeywords []string `mapstructure:"success_keywords" yaml:"success_keywords"`
	StrictMode      bool     `mapstructure:"strict_mode" yaml:"strict_mode"`
}

// NotifyConfig lists the outcome notification channels and preview limits.
type NotifyConfig struct {
	PushPlusToken       string   `mapstructure:"pushplus_token" yaml:"-"`
	BarkURL             string   `mapstructure:"bark_url" yaml:"bark_url"`
	WebhookURLs         []string `mapstructure:"webhook_urls" yaml:"webhook_urls"`
	FailurePreviewLimit int      `mapstructure:"failure_preview_limit" yaml:"failure_preview_limit"`
	SuccessPreviewLimit int      `mapstructure:"success_preview_limit" yaml:"success_preview_limit"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "checkin-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Target --
	v.SetDefault("target.base_url", "https://anyrouter.top")
	v.SetDefault("target.login_api", "/api/auth/login")
	v.SetDefault("target.identity_field", "email")
	v.SetDefault("target.secret_field", "password")
	v.SetDefault("target.action_path", "/api/user/sign_in")
	v.SetDefault("target.login_mode", ModeBrowser)

	// -- HTTP --
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.verify_tls", true)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	v.SetDefault("http.new_api_user", "1")
	v.SetDefault("http.pre_warm", true)

	// -- Browser --
	v.SetDefault("browser.headed", false)
	v.SetDefault("browser.slow_motion_ms", 0)

	// -- Retry --
	v.SetDefault("retry.budget", 1)
	v.SetDefault("retry.interval_seconds", 2)

	// -- Classify --
	v.SetDefault("classify.success_keywords", []string{"成功", "已签到", "签到成功", "签到"})
	v.SetDefault("classify.strict_mode", false)

	// -- Notify --
	v.SetDefault("notify.failure_preview_limit", 500)
	v.SetDefault("notify.success_preview_limit", 0)
}

// NewFromViper creates the immutable configuration snapshot from a viper
// object and validates it. Errors at this boundary are precondition failures:
// the run must abort without making any attempt.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data not usually written to disk.
	v.BindEnv("credentials.identity", "CHECKIN_USER")
	v.BindEnv("credentials.secret", "CHECKIN_PASS")
	v.BindEnv("credentials.session_token", "CHECKIN_SESSION")
	v.BindEnv("notify.pushplus_token", "PUSHPLUS_TOKEN")
	v.BindEnv("notify.bark_url", "BARK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Target.LoginMode {
	case ModeBrowser, ModeAPI, ModeCookie, ModeAuto:
	default:
		return fmt.Errorf("target.login_mode must be one of browser/api/cookie/auto, got %q", c.Target.LoginMode)
	}
	if c.Target.LoginMode == ModeCookie {
		if c.Credentials.SessionToken == "" {
			return fmt.Errorf("credentials.session_token is required in cookie login mode")
		}
	} else if c.Credentials.Identity == "" || c.Credentials.Secret == "" {
		return fmt.Errorf("credentials.identity and credentials.secret are required (CHECKIN_USER / CHECKIN_PASS)")
	}
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url must not be empty")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be a positive integer")
	}
	if c.Retry.Budget < 0 {
		return fmt.Errorf("retry.budget must not be negative")
	}
	if c.Notify.FailurePreviewLimit < 0 || c.Notify.SuccessPreviewLimit < 0 {
		return fmt.Errorf("notify preview limits must not be negative")
	}
	if _, err := ParseHeaderSpec(c.HTTP.ExtraHeaders); err != nil {
		return fmt.Errorf("http.extra_headers: %w", err)
	}
	return nil
}

// MaskSecret redacts a sensitive value for logging, keeping a short head and
// tail. Values too short to keep anything are fully starred.
func MaskSecret(s string) string {
	const head, tail = 6, 6
	s = strings.TrimSpace(s)
	if len(s) <= head+tail {
		return strings.Repeat("*", len(s))
	}
	return s[:head] + "***" + s[len(s)-tail:]
}

// ParseHeaderSpec parses the extra-headers option. It accepts either a JSON
// object or key=value / key: value pairs separated by semicolons or newlines.
// Lines starting with # are ignored.
func ParseHeaderSpec(spec string) (map[string]string, error) {
	headers := make(map[string]string)
	s := strings.TrimSpace(spec)
	if s == "" {
		return headers, nil
	}

	if strings.HasPrefix(s, "{") {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, fmt.Errorf("malformed JSON header object: %w", err)
		}
		for k, v := range raw {
			headers[strings.TrimSpace(k)] = strings.TrimSpace(fmt.Sprintf("%v", v))
		}
		return headers, nil
	}

	for _, pair := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '\n' || r == '\r' }) {
		pair = strings.TrimSpace(pair)
		if pair == "" || strings.HasPrefix(pair, "#") {
			continue
		}
		var k, v string
		if idx := strings.Index(pair, "="); idx >= 0 {
			k, v = pair[:idx], pair[idx+1:]
		} else if idx := strings.Index(pair, ":"); idx >= 0 {
			k, v = pair[:idx], pair[idx+1:]
		} else {
			continue
		}
		if key := strings.TrimSpace(k); key != "" {
			headers[key] = strings.TrimSpace(v)
		}
	}
	return headers, nil
}
