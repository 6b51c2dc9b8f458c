// File: internal/browser/stealth.go
package browser

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:embed js_scripts/evasions.js
var evasionsScript string

// ScreenProperties defines the spoofed display resolution.
type ScreenProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Persona defines a consistent browser profile to present to the target. The
// target's bot filter inspects the JS environment, so the profile must match
// across the UA string, client metrics and navigator properties.
type Persona struct {
	UserAgent string           `json:"userAgent"`
	Platform  string           `json:"platform"`
	Languages []string         `json:"languages"`
	Screen    ScreenProperties `json:"screen"`
}

// ApplyStealth orchestrates the stealth actions for a new tab.
func ApplyStealth(persona Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		setAcceptLanguage(persona),
		setUserAgentOverride(persona),
		setDeviceMetrics(persona),
		injectEvasionScript(persona),
		page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Stealth profile applied", zap.String("UserAgent", persona.UserAgent))
			return nil
		}),
	}
}

// injectEvasionScript registers the JS evasion script to run before any page
// script on every new document.
func injectEvasionScript(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		personaJSON, err := json.Marshal(persona)
		if err != nil {
			return fmt.Errorf("stealth: failed to marshal persona: %w", err)
		}
		script := fmt.Sprintf("const CHECKIN_PERSONA = %s;\n%s", string(personaJSON), evasionsScript)
		if _, err = page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}

func setUserAgentOverride(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("stealth: failed to set user agent override: %w", err)
		}
		return nil
	})
}

func setAcceptLanguage(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(persona.Languages) == 0 {
			return nil
		}
		formatted := persona.Languages[0]
		for i := 1; i < len(persona.Languages); i++ {
			q := 1.0 - float64(i)*0.1
			if q < 0.7 {
				q = 0.7
			}
			formatted += fmt.Sprintf(",%s;q=%.1f", persona.Languages[i], q)
		}
		headers := map[string]interface{}{"Accept-Language": formatted}
		if err := network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
		}
		return nil
	})
}

func setDeviceMetrics(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Screen.Width <= 0 || persona.Screen.Height <= 0 {
			return nil
		}
		err := emulation.SetDeviceMetricsOverride(persona.Screen.Width, persona.Screen.Height, 1.0, false).
			WithScreenOrientation(&emulation.ScreenOrientation{
				Type:  emulation.OrientationTypeLandscapePrimary,
				Angle: 0,
			}).Do(ctx)
		if err != nil {
			return fmt.Errorf("stealth: failed to set device metrics: %w", err)
		}
		return nil
	})
}
