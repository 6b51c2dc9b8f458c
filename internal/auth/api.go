// File: internal/auth/api.go
package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/config"
	"github.com/xkilldash9x/checkin-cli/internal/network"
)

// Cap on how much of a login response is read for inspection.
const maxLoginBodyBytes = 256 << 10

// APILogin posts credentials directly to the login API. It is the cheapest
// strategy but the first to be blocked by the challenge interstitial.
type APILogin struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAPILogin builds the API login strategy.
func NewAPILogin(cfg *config.Config, logger *zap.Logger) *APILogin {
	return &APILogin{cfg: cfg, logger: logger.Named("auth_api")}
}

func (s *APILogin) Name() string { return "api-login" }

// Login pre-warms the session, posts the credential payload and verifies the
// response. Session cookies land in the client's jar via Set-Cookie.
func (s *APILogin) Login(ctx context.Context) (*Session, error) {
	session, err := newBaseSession(s.cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if s.cfg.HTTP.PreWarm {
		s.preWarm(ctx, session)
	}

	payload := map[string]string{
		s.cfg.Target.IdentityField: s.cfg.Credentials.Identity,
		s.cfg.Target.SecretField:   s.cfg.Credentials.Secret,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode login payload: %v", ErrAuthFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Target.LoginAPIURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	network.ApplyHeaders(req, session.Headers)

	resp, err := session.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: login request failed: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read login response: %v", ErrAuthFailed, err)
	}
	text := string(respBody)

	if IsChallenge(text) {
		return nil, fmt.Errorf("%w: login endpoint served the interstitial", ErrChallengeDetected)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: login returned HTTP %d", ErrAuthFailed, resp.StatusCode)
	}
	if !loginAccepted(text) {
		return nil, fmt.Errorf("%w: login response carried no success signal%s", ErrAuthFailed, rejectionDetail(text))
	}

	s.logger.Info("API login succeeded",
		zap.String("session_id", session.ID),
		zap.String("identity", s.cfg.Credentials.MaskedIdentity()),
	)
	return session, nil
}

// preWarm fetches the user page first so the login POST arrives on a session
// that already passed the front door. Failures are ignored.
func (s *APILogin) preWarm(ctx context.Context, session *Session) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Target.Resolve("/user"), nil)
	if err != nil {
		return
	}
	network.ApplyHeaders(req, session.Headers)
	resp, err := session.Client.Do(req)
	if err != nil {
		s.logger.Debug("Pre-warm request failed", zap.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxLoginBodyBytes))
	_ = resp.Body.Close()
}

// loginAccepted reports whether a 2xx login response carries a positive
// outcome: a true success flag, a zero or 200 code, or an issued token.
// Anything else, including a decoy HTML page, is treated as a rejection.
func loginAccepted(body string) bool {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(body), &payload); err != nil || payload == nil {
		return false
	}

	switch v := payload["success"].(type) {
	case bool:
		if v {
			return true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true
		}
	case float64:
		if v == 1 {
			return true
		}
	}

	switch code := payload["code"].(type) {
	case float64:
		if code == 0 || code == 200 {
			return true
		}
	case string:
		if code == "0" || code == "200" {
			return true
		}
	}

	for _, field := range []string{"token", "accessToken"} {
		if s, ok := payload[field].(string); ok && s != "" {
			return true
		}
	}
	return false
}

// rejectionDetail pulls the server's message out of a rejected login body.
func rejectionDetail(body string) string {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(body), &payload); err != nil || payload == nil {
		return ""
	}
	for _, field := range []string{"message", "msg"} {
		if msg, _ := payload[field].(string); msg != "" {
			return fmt.Sprintf(": %s", msg)
		}
	}
	return ""
}
