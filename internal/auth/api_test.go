// File: internal/auth/api_test.go
package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Credentials: config.CredentialsConfig{
			Identity: "user@example.com",
			Secret:   "hunter22hunter22",
		},
		Target: config.TargetConfig{
			BaseURL:       baseURL,
			LoginAPI:      "/api/auth/login",
			IdentityField: "email",
			SecretField:   "password",
			ActionPath:    "/api/user/sign_in",
			LoginMode:     config.ModeAPI,
		},
		HTTP: config.HTTPConfig{
			TimeoutSeconds:   5,
			VerifyTLS:        true,
			UserAgent:        "test-agent",
			NewAPIUserHeader: "1",
		},
	}
}

func TestAPILoginSuccess(t *testing.T) {
	var loginReq map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "1", r.Header.Get("New-Api-User"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &loginReq))

		http.SetCookie(w, &http.Cookie{Name: "session", Value: "srv-token", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success": true}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	session, err := NewAPILogin(cfg, zap.NewNop()).Login(t.Context())
	require.NoError(t, err)
	defer session.Release()

	assert.Equal(t, "user@example.com", loginReq["email"])
	assert.Equal(t, "hunter22hunter22", loginReq["password"])
	assert.NotEmpty(t, session.ID)
	assert.Nil(t, session.Page)

	u, _ := url.Parse(srv.URL)
	cookies := session.Client.Jar.Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "srv-token", cookies[0].Value)
}

func TestAPILoginChallengeFastFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<script>var arg1 = '0a1b2c';</script>`)
	}))
	defer srv.Close()

	_, err := NewAPILogin(testConfig(srv.URL), zap.NewNop()).Login(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeDetected)
}

func TestAPILoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success": false, "message": "invalid credentials"}`)
	}))
	defer srv.Close()

	_, err := NewAPILogin(testConfig(srv.URL), zap.NewNop()).Login(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestAPILoginDecoyPageRejected(t *testing.T) {
	// A bot-hostile front door may answer 200 with an HTML page instead of
	// the login API. Without a positive signal the login must fail.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body>Welcome back!</body></html>`)
	}))
	defer srv.Close()

	_, err := NewAPILogin(testConfig(srv.URL), zap.NewNop()).Login(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAPILoginNonZeroCodeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"code": 1, "msg": "wrong password"}`)
	}))
	defer srv.Close()

	_, err := NewAPILogin(testConfig(srv.URL), zap.NewNop()).Login(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "wrong password")
}

func TestLoginAccepted(t *testing.T) {
	accepted := []string{
		`{"success": true}`,
		`{"success": "true"}`,
		`{"success": "1"}`,
		`{"code": 0}`,
		`{"code": 200}`,
		`{"code": "0"}`,
		`{"code": "200"}`,
		`{"token": "abc"}`,
		`{"accessToken": "abc"}`,
	}
	for _, body := range accepted {
		assert.True(t, loginAccepted(body), "body=%s", body)
	}

	rejected := []string{
		`{"success": false}`,
		`{"code": 1, "msg": "wrong password"}`,
		`{"data": {"user": 1}}`,
		`<html>decoy</html>`,
		``,
	}
	for _, body := range rejected {
		assert.False(t, loginAccepted(body), "body=%s", body)
	}
}

func TestAPILoginHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewAPILogin(testConfig(srv.URL), zap.NewNop()).Login(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "401")
}

func TestAPILoginPreWarm(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/auth/login" {
			_, _ = io.WriteString(w, `{"success": true}`)
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.HTTP.PreWarm = true
	session, err := NewAPILogin(cfg, zap.NewNop()).Login(t.Context())
	require.NoError(t, err)
	defer session.Release()

	require.Len(t, paths, 2)
	assert.Equal(t, "/user", paths[0])
	assert.Equal(t, "/api/auth/login", paths[1])
}

func TestSessionCookieReuse(t *testing.T) {
	cfg := testConfig("https://example.com")
	cfg.Credentials.SessionToken = "stored-token"

	session, err := NewSessionCookieReuse(cfg, zap.NewNop()).Login(t.Context())
	require.NoError(t, err)
	defer session.Release()

	u, _ := url.Parse("https://example.com")
	cookies := session.Client.Jar.Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "stored-token", cookies[0].Value)
}

func TestSessionCookieReuseWithoutToken(t *testing.T) {
	_, err := NewSessionCookieReuse(testConfig("https://example.com"), zap.NewNop()).Login(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestChainForModes(t *testing.T) {
	names := func(chain []Strategy) []string {
		var out []string
		for _, s := range chain {
			out = append(out, s.Name())
		}
		return out
	}

	cfg := testConfig("https://example.com")

	cfg.Target.LoginMode = config.ModeCookie
	assert.Equal(t, []string{"cookie-reuse"}, names(ChainFor(cfg, zap.NewNop())))

	cfg.Target.LoginMode = config.ModeAPI
	assert.Equal(t, []string{"api-login"}, names(ChainFor(cfg, zap.NewNop())))

	cfg.Target.LoginMode = config.ModeBrowser
	assert.Equal(t, []string{"browser-login"}, names(ChainFor(cfg, zap.NewNop())))

	cfg.Target.LoginMode = config.ModeAuto
	assert.Equal(t, []string{"browser-login", "api-login"}, names(ChainFor(cfg, zap.NewNop())))

	cfg.Credentials.SessionToken = "tok"
	assert.Equal(t, []string{"cookie-reuse", "browser-login", "api-login"}, names(ChainFor(cfg, zap.NewNop())))
}

func TestIsChallenge(t *testing.T) {
	assert.True(t, IsChallenge(`var arg1 = '0B5BCCBA';`))
	assert.True(t, IsChallenge("var  arg1='x'"))
	assert.False(t, IsChallenge(`{"success": true}`))
	assert.False(t, IsChallenge("var arg2 = 'x'"))
}
