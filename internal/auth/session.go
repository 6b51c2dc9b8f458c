// File: internal/auth/session.go

// Package auth establishes an authenticated session against the target using
// one of several strategies: reusing a known session cookie, posting
// credentials to the login API, or driving a real browser through the login
// form. Strategies are tried in a configured order; each returns a Session
// whose transport carries the authentication state.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/config"
	"github.com/xkilldash9x/checkin-cli/internal/network"
)

// Session is an authenticated context for the action request. Client always
// carries the session cookies; Page is non-nil only after a browser login and
// enables the in-page fallback channel.
type Session struct {
	ID      string
	Client  *network.Client
	Headers http.Header
	Page    PageRunner

	releasers []func()
}

// PageRunner is the slice of the browser page the invoker needs: the in-page
// fallback channel plus a screenshot for diagnostics when it throws.
type PageRunner interface {
	FetchPost(ctx context.Context, url string, headers map[string]string) (int, string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Release frees browser resources held by the session. Safe to call more
// than once.
func (s *Session) Release() {
	for _, release := range s.releasers {
		release()
	}
	s.releasers = nil
}

// Strategy is one way of obtaining an authenticated session.
type Strategy interface {
	Name() string
	Login(ctx context.Context) (*Session, error)
}

// newBaseSession builds the session skeleton shared by all strategies: a
// fresh client with an empty jar and the standard action headers.
func newBaseSession(cfg *config.Config, logger *zap.Logger) (*Session, error) {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.IgnoreTLSErrors = !cfg.HTTP.VerifyTLS
	clientCfg.RequestTimeout = cfg.HTTP.Timeout()
	clientCfg.Logger = logger

	client, err := network.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}
	headers, err := network.BuildActionHeaders(cfg.HTTP, cfg.Target)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:      uuid.NewString(),
		Client:  client,
		Headers: headers,
	}, nil
}

// ChainFor returns the ordered strategy list for the configured login mode.
// Auto mode tries the browser first and falls back to the API; a configured
// session token is always worth trying before either.
func ChainFor(cfg *config.Config, logger *zap.Logger) []Strategy {
	switch cfg.Target.LoginMode {
	case config.ModeCookie:
		return []Strategy{NewSessionCookieReuse(cfg, logger)}
	case config.ModeAPI:
		return []Strategy{NewAPILogin(cfg, logger)}
	case config.ModeBrowser:
		return []Strategy{NewBrowserLogin(cfg, logger)}
	default: // config.ModeAuto
		var chain []Strategy
		if cfg.Credentials.SessionToken != "" {
			chain = append(chain, NewSessionCookieReuse(cfg, logger))
		}
		return append(chain, NewBrowserLogin(cfg, logger), NewAPILogin(cfg, logger))
	}
}
