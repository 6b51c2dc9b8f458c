// File: internal/browser/page.go
package browser

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:embed js_scripts/field_by_label.js
var fieldByLabelScript string

//go:embed js_scripts/field_by_placeholder.js
var fieldByPlaceholderScript string

//go:embed js_scripts/visible_inputs.js
var visibleInputsScript string

//go:embed js_scripts/clickable_by_text.js
var clickableByTextScript string

//go:embed js_scripts/dismiss_dialogs.js
var dismissDialogsScript string

//go:embed js_scripts/fetch_post.js
var fetchPostScript string

// Page is one browser tab. Methods honor the caller's context deadline while
// staying bound to the tab's own lifetime.
type Page struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	slowMotion time.Duration
}

// Close releases the tab.
func (p *Page) Close() {
	p.cancel()
}

// run executes chromedp actions against the tab, bounded by ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	bound, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(bound, actions...)
}

// pause sleeps for the configured slow-motion delay. Used between user-like
// interactions when debugging in headed mode.
func (p *Page) pause(ctx context.Context) {
	if p.slowMotion <= 0 {
		return
	}
	select {
	case <-time.After(p.slowMotion):
	case <-ctx.Done():
	}
}

// Navigate loads a URL and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	p.pause(ctx)
	return nil
}

// CurrentURL returns the tab's current location.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// call invokes an embedded function-expression script with JSON-encoded
// arguments, optionally awaiting a returned promise.
func (p *Page) call(ctx context.Context, script string, res interface{}, awaitPromise bool, args ...interface{}) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode script argument: %w", err)
		}
		encoded[i] = string(b)
	}
	expr := fmt.Sprintf("(%s)(%s)", strings.TrimSpace(script), strings.Join(encoded, ", "))

	opts := func(ep *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
		return ep.WithAwaitPromise(awaitPromise)
	}
	return p.run(ctx, chromedp.Evaluate(expr, res, opts))
}

// Fill clears a field and types the value into it.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	p.pause(ctx)
	return nil
}

// Click clicks a visible element.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	p.pause(ctx)
	return nil
}

// PressEnter sends the Enter key to an element, submitting its form.
func (p *Page) PressEnter(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to press enter on %s: %w", selector, err)
	}
	return nil
}

// SelectorVisible reports whether a selector matches a visible element.
func (p *Page) SelectorVisible(ctx context.Context, selector string) (bool, error) {
	const script = `(sel) => {
        const el = document.querySelector(sel);
        return !!el && el.getClientRects().length > 0;
    }`
	var visible bool
	if err := p.call(ctx, script, &visible, false, selector); err != nil {
		return false, err
	}
	return visible, nil
}

// Screenshot captures the full page as PNG for failure diagnostics.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Cookies returns the browser's cookies converted for use with an
// http.Client jar.
func (p *Page) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range raw {
			cookie := &http.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HttpOnly: c.HTTPOnly,
			}
			if c.Expires > 0 {
				cookie.Expires = time.Unix(int64(c.Expires), 0)
			}
			cookies = append(cookies, cookie)
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to collect cookies: %w", err)
	}
	return cookies, nil
}

// FetchPost performs a same-origin POST from inside the page, with the
// page's own cookie state. A rejected promise surfaces as an error.
func (p *Page) FetchPost(ctx context.Context, url string, headers map[string]string) (int, string, error) {
	var result struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if err := p.call(ctx, fetchPostScript, &result, true, url, headers); err != nil {
		return 0, "", fmt.Errorf("in-page fetch failed: %w", err)
	}
	return result.Status, result.Body, nil
}

// DismissMatching clicks all visible dismissal controls whose text matches
// one of the fragments, returning how many were clicked.
func (p *Page) DismissMatching(ctx context.Context, texts []string) (int, error) {
	var clicked int
	if err := p.call(ctx, dismissDialogsScript, &clicked, false, texts); err != nil {
		return 0, err
	}
	if clicked > 0 {
		p.logger.Debug("Dismissed overlay controls", zap.Int("clicked", clicked))
		p.pause(ctx)
	}
	return clicked, nil
}

// -- FieldQuerier implementation --

// SelectorByLabel resolves a form control by its label text.
func (p *Page) SelectorByLabel(ctx context.Context, labels []string) (string, error) {
	var sel string
	if err := p.call(ctx, fieldByLabelScript, &sel, false, labels); err != nil {
		return "", err
	}
	return sel, nil
}

// SelectorByPlaceholder resolves a form control by its placeholder text.
func (p *Page) SelectorByPlaceholder(ctx context.Context, hints []string) (string, error) {
	var sel string
	if err := p.call(ctx, fieldByPlaceholderScript, &sel, false, hints); err != nil {
		return "", err
	}
	return sel, nil
}

// VisibleInputSelectors returns selectors for all visible text inputs in
// document order.
func (p *Page) VisibleInputSelectors(ctx context.Context) ([]string, error) {
	var sels []string
	if err := p.call(ctx, visibleInputsScript, &sels, false); err != nil {
		return nil, err
	}
	return sels, nil
}

// ClickableByText resolves a visible clickable element by its text content.
func (p *Page) ClickableByText(ctx context.Context, texts []string) (string, error) {
	var sel string
	if err := p.call(ctx, clickableByTextScript, &sel, false, texts); err != nil {
		return "", err
	}
	return sel, nil
}
