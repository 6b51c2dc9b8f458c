// File: internal/browser/manager.go

// Package browser drives a Chrome instance through chromedp for the
// interactive login flow. Every run attempt launches its own browser process
// so no profile state survives between attempts.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

// Manager owns one browser process and hands out pages bound to it.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	persona Persona
}

// NewManager launches the browser process and verifies it responds. The
// caller must invoke Shutdown when done with all pages.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig, userAgent string, ignoreTLSErrors bool) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		persona: Persona{
			UserAgent: userAgent,
			Platform:  "Win32",
			Languages: []string{"zh-CN", "zh", "en-US", "en"},
			Screen:    ScreenProperties{Width: 1920, Height: 1080},
		},
	}
	if w, h := cfg.ViewportSize(); w > 0 && h > 0 {
		m.persona.Screen = ScreenProperties{Width: int64(w), Height: int64(h)}
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions(ignoreTLSErrors)...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	// Confirm the process is alive before handing the manager out.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	defer cancelTest()
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Debug("Browser launched and responsive")
	return m, nil
}

// buildAllocatorOptions assembles flags for a stealthy browser instance,
// filtering out defaults that reveal automation.
func (m *Manager) buildAllocatorOptions(ignoreTLSErrors bool) []chromedp.ExecAllocatorOption {
	// ExecAllocatorOption is an opaque func type, so the defaults cannot be
	// filtered; override enable-automation with false instead (a false bool
	// flag is omitted from the command line).
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("enable-automation", false))

	headless := !m.cfg.Headed
	opts = append(opts,
		chromedp.Flag("headless", headless),
		chromedp.Flag("ignore-certificate-errors", ignoreTLSErrors),
		// navigator.webdriver and friends.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", headless),
		chromedp.UserAgent(m.persona.UserAgent),
	)

	// Required when running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// NewPage opens a fresh tab with the stealth profile applied.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	combined, cancelCombined := combineContext(m.allocatorCtx, ctx)

	tabCtx, cancelTab := chromedp.NewContext(combined)
	cancel := func() {
		cancelTab()
		cancelCombined()
	}

	if err := chromedp.Run(tabCtx, ApplyStealth(m.persona, m.logger)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to apply stealth profile: %w", err)
	}

	return &Page{
		ctx:        tabCtx,
		cancel:     cancel,
		logger:     m.logger.Named("page"),
		slowMotion: time.Duration(m.cfg.SlowMotionMs) * time.Millisecond,
	}, nil
}

// Shutdown terminates the browser process.
func (m *Manager) Shutdown() {
	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
}

// combineContext derives a context from the allocator that is also cancelled
// when the caller's context ends.
func combineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
