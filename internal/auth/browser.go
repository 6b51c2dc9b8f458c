// File: internal/auth/browser.go
package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/browser"
	"github.com/xkilldash9x/checkin-cli/internal/config"
)

// settledURL matches the paths the target redirects to after a successful
// interactive login.
var settledURL = regexp.MustCompile(`/(user|console|dashboard)`)

// Texts of controls that get in the way of the login form.
var (
	dialogDismissTexts = []string{"关闭公告", "今日关闭", "close", "Close", "×"}
	emailSwitchTexts   = []string{"使用 邮箱或用户名 登录", "邮箱或用户名", "邮箱登录"}
)

const (
	settleTimeout      = 15 * time.Second
	settlePollInterval = 500 * time.Millisecond
)

// loginPage is the slice of the browser page the form flow drives. *browser.Page
// implements it; tests substitute a fake.
type loginPage interface {
	browser.FieldQuerier
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	PressEnter(ctx context.Context, selector string) error
	DismissMatching(ctx context.Context, texts []string) (int, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
}

// BrowserLogin drives a real browser through the login form. It is the
// slowest strategy but the only one that passes the JS challenge, so it is
// tried first in auto mode.
type BrowserLogin struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewBrowserLogin builds the browser login strategy.
func NewBrowserLogin(cfg *config.Config, logger *zap.Logger) *BrowserLogin {
	return &BrowserLogin{cfg: cfg, logger: logger.Named("auth_browser")}
}

func (s *BrowserLogin) Name() string { return "browser-login" }

// Login launches a fresh browser, finds a usable login page, fills and
// submits the form, then harvests the session cookies into an HTTP client.
// The returned session keeps the page alive for the in-page action fallback.
func (s *BrowserLogin) Login(ctx context.Context) (*Session, error) {
	mgr, err := browser.NewManager(ctx, s.logger, s.cfg.Browser, s.cfg.HTTP.UserAgent, !s.cfg.HTTP.VerifyTLS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	page, err := mgr.NewPage(ctx)
	if err != nil {
		mgr.Shutdown()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	handedOff := false
	defer func() {
		if !handedOff {
			s.snapshot(page)
			page.Close()
			mgr.Shutdown()
		}
	}()

	cookies, err := s.driveLogin(ctx, page)
	if err != nil {
		return nil, err
	}

	session, err := newBaseSession(s.cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if err := session.Client.SetCookies(s.cfg.Target.BaseURL, cookies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	session.Page = page
	session.releasers = []func(){page.Close, mgr.Shutdown}

	s.logger.Info("Browser login completed",
		zap.String("session_id", session.ID),
		zap.String("identity", s.cfg.Credentials.MaskedIdentity()),
		zap.Int("cookies", len(cookies)),
	)
	handedOff = true
	return session, nil
}

// driveLogin runs the whole form flow on an open page: warm up the home
// page, locate and fill the form, submit and harvest the cookies.
func (s *BrowserLogin) driveLogin(ctx context.Context, page loginPage) ([]*http.Cookie, error) {
	// The front door sets its challenge cookie on the home page; open it
	// before probing any login path. Failure here is not fatal.
	if err := page.Navigate(ctx, s.cfg.Target.Resolve("")); err != nil {
		s.logger.Debug("Home page warm-up failed", zap.Error(err))
	}

	form, err := s.findLoginForm(ctx, page)
	if err != nil {
		return nil, err
	}

	if err := page.Fill(ctx, form.Identity, s.cfg.Credentials.Identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if err := page.Fill(ctx, form.Secret, s.cfg.Credentials.Secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if form.Submit != "" {
		err = page.Click(ctx, form.Submit)
	} else {
		err = page.PressEnter(ctx, form.Secret)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to submit login form: %v", ErrAuthFailed, err)
	}

	// Best effort: the action request decides whether login really worked.
	if !s.waitSettled(ctx, page) {
		s.logger.Warn("Post-login settle wait elapsed without a recognized URL or session cookie")
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return cookies, nil
}

// findLoginForm walks the login path candidates until one yields a usable
// form. The challenge interstitial aborts the whole walk.
func (s *BrowserLogin) findLoginForm(ctx context.Context, page loginPage) (browser.LoginForm, error) {
	locator := browser.NewFormLocator(s.logger, s.cfg.Browser.Selectors)

	var lastErr error
	for _, path := range s.cfg.Target.LoginPathCandidates() {
		url := s.cfg.Target.Resolve(path)
		if err := page.Navigate(ctx, url); err != nil {
			lastErr = err
			continue
		}
		html, err := page.HTML(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if IsChallenge(html) {
			return browser.LoginForm{}, fmt.Errorf("%w: login page %s served the interstitial", ErrChallengeDetected, path)
		}

		// Announcement dialogs and the OAuth-first layout both hide the form.
		if _, err := page.DismissMatching(ctx, dialogDismissTexts); err != nil {
			s.logger.Debug("Dialog dismissal failed", zap.Error(err))
		}
		s.switchToEmailLogin(ctx, page)

		form, err := locator.Locate(ctx, page)
		if err != nil {
			s.logger.Debug("No login form on candidate page", zap.String("path", path), zap.Error(err))
			lastErr = err
			continue
		}
		s.logger.Info("Login form located", zap.String("url", url))
		return form, nil
	}
	return browser.LoginForm{}, fmt.Errorf("%w: no usable login form found: %v", ErrAuthFailed, lastErr)
}

// switchToEmailLogin clicks the email/username method switcher when the page
// defaults to OAuth buttons. Absence of the switcher is normal.
func (s *BrowserLogin) switchToEmailLogin(ctx context.Context, page loginPage) {
	sel, err := page.ClickableByText(ctx, emailSwitchTexts)
	if err != nil || sel == "" {
		return
	}
	if err := page.Click(ctx, sel); err != nil {
		s.logger.Debug("Email login switcher click failed", zap.Error(err))
	}
}

// waitSettled polls for the post-login redirect or a session cookie, capped
// at settleTimeout. Timing out is not fatal.
func (s *BrowserLogin) waitSettled(ctx context.Context, page loginPage) bool {
	deadline := time.Now().Add(settleTimeout)
	for time.Now().Before(deadline) {
		if url, err := page.CurrentURL(ctx); err == nil && settledURL.MatchString(url) {
			return true
		}
		if cookies, err := page.Cookies(ctx); err == nil {
			for _, c := range cookies {
				if strings.HasPrefix(strings.ToLower(c.Name), "session") && c.Value != "" {
					return true
				}
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(settlePollInterval):
		}
	}
	return false
}

// snapshot captures a diagnostic screenshot of the failed login state.
func (s *BrowserLogin) snapshot(page *browser.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	buf, err := page.Screenshot(ctx)
	if err != nil {
		s.logger.Debug("Failed to capture diagnostic screenshot", zap.Error(err))
		return
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("checkin-login-%d.png", time.Now().Unix()))
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		s.logger.Debug("Failed to write diagnostic screenshot", zap.Error(err))
		return
	}
	s.logger.Info("Saved diagnostic screenshot", zap.String("path", path))
}
