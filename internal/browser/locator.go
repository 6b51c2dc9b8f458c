// File: internal/browser/locator.go
package browser

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

// ErrElementNotFound is returned when every location strategy for a required
// element is exhausted.
var ErrElementNotFound = errors.New("element not found by any strategy")

// FieldQuerier is the page surface the locator needs. *Page implements it;
// tests substitute a fake.
type FieldQuerier interface {
	SelectorByLabel(ctx context.Context, labels []string) (string, error)
	SelectorByPlaceholder(ctx context.Context, hints []string) (string, error)
	SelectorVisible(ctx context.Context, selector string) (bool, error)
	VisibleInputSelectors(ctx context.Context) ([]string, error)
	ClickableByText(ctx context.Context, texts []string) (string, error)
}

// LoginForm holds the resolved selectors for the login form. Submit may be
// empty, in which case the caller falls back to pressing Enter in the secret
// field.
type LoginForm struct {
	Identity string
	Secret   string
	Submit   string
}

// Text fragments the target's login page is known to use.
var (
	identityLabels       = []string{"用户名或邮箱", "用户名", "邮箱", "Username", "Email"}
	identityPlaceholders = []string{"用户名", "邮箱", "username", "email", "Email"}
	secretLabels         = []string{"密码", "Password"}
	secretPlaceholders   = []string{"密码", "password", "Password"}
	submitTexts          = []string{"继续", "登录", "登 录", "Sign in", "Log in", "Continue"}
)

// Common CSS fallbacks, tried in order.
var (
	identitySelectors = []string{
		`input[type="email"]`,
		`input[name="email"]`,
		`input[name="username"]`,
		`input[id="email"]`,
		`input[id="username"]`,
		`input[autocomplete="username"]`,
	}
	secretSelectors = []string{
		`input[type="password"]`,
		`input[name="password"]`,
		`input[id="password"]`,
		`input[autocomplete="current-password"]`,
	}
	submitSelectors = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`form button`,
	}
)

// FormLocator resolves the login form fields with a ranked strategy chain:
// label text, placeholder text, caller-supplied selector overrides, common
// CSS selectors, and finally the first two visible inputs on the page. The
// first strategy that matches wins.
type FormLocator struct {
	logger    *zap.Logger
	overrides config.SelectorOverrides
}

// NewFormLocator builds a locator with optional selector overrides.
func NewFormLocator(logger *zap.Logger, overrides config.SelectorOverrides) *FormLocator {
	return &FormLocator{logger: logger.Named("locator"), overrides: overrides}
}

// Locate resolves the identity and secret fields plus the submit control.
// A missing submit control is not an error; missing input fields are. The
// positional fallback is pair-level: it fires only when no earlier strategy
// resolved either field, and it needs at least two visible inputs.
func (fl *FormLocator) Locate(ctx context.Context, q FieldQuerier) (LoginForm, error) {
	identity, idStrategy, err := fl.locateField(ctx, q, fieldSpec{
		name:         "identity",
		labels:       identityLabels,
		placeholders: identityPlaceholders,
		override:     fl.overrides.Identity,
		selectors:    identitySelectors,
	})
	if err != nil {
		return LoginForm{}, err
	}

	secret, secStrategy, err := fl.locateField(ctx, q, fieldSpec{
		name:         "secret",
		labels:       secretLabels,
		placeholders: secretPlaceholders,
		override:     fl.overrides.Secret,
		selectors:    secretSelectors,
	})
	if err != nil {
		return LoginForm{}, err
	}

	switch {
	case identity == "" && secret == "":
		inputs, err := q.VisibleInputSelectors(ctx)
		if err != nil {
			return LoginForm{}, err
		}
		if len(inputs) < 2 {
			return LoginForm{}, fmt.Errorf("%w: login form fields", ErrElementNotFound)
		}
		identity, secret = inputs[0], inputs[1]
		idStrategy, secStrategy = "visible-order", "visible-order"
	case identity == "":
		return LoginForm{}, fmt.Errorf("%w: identity field", ErrElementNotFound)
	case secret == "":
		return LoginForm{}, fmt.Errorf("%w: secret field", ErrElementNotFound)
	}

	submit, subStrategy := fl.locateSubmit(ctx, q)

	fl.logger.Debug("Login form resolved",
		zap.String("identity_strategy", idStrategy),
		zap.String("secret_strategy", secStrategy),
		zap.String("submit_strategy", subStrategy),
	)
	return LoginForm{Identity: identity, Secret: secret, Submit: submit}, nil
}

type fieldSpec struct {
	name         string
	labels       []string
	placeholders []string
	override     string
	selectors    []string
}

// locateField walks strategies label, placeholder, override and common CSS
// for one field, returning the selector plus the strategy that produced it.
// An empty selector with nil error means the chain was exhausted.
func (fl *FormLocator) locateField(ctx context.Context, q FieldQuerier, spec fieldSpec) (string, string, error) {
	if sel, err := q.SelectorByLabel(ctx, spec.labels); err == nil && sel != "" {
		return sel, "label", nil
	} else if err != nil {
		return "", "", err
	}

	if sel, err := q.SelectorByPlaceholder(ctx, spec.placeholders); err == nil && sel != "" {
		return sel, "placeholder", nil
	} else if err != nil {
		return "", "", err
	}

	if spec.override != "" {
		visible, err := q.SelectorVisible(ctx, spec.override)
		if err != nil {
			return "", "", err
		}
		if visible {
			return spec.override, "override", nil
		}
		fl.logger.Warn("Configured selector override matched nothing visible",
			zap.String("field", spec.name), zap.String("selector", spec.override))
	}

	for _, sel := range spec.selectors {
		visible, err := q.SelectorVisible(ctx, sel)
		if err != nil {
			return "", "", err
		}
		if visible {
			return sel, "common-css", nil
		}
	}

	return "", "", nil
}

// locateSubmit resolves the submit control; best effort only.
func (fl *FormLocator) locateSubmit(ctx context.Context, q FieldQuerier) (string, string) {
	if fl.overrides.Submit != "" {
		if visible, err := q.SelectorVisible(ctx, fl.overrides.Submit); err == nil && visible {
			return fl.overrides.Submit, "override"
		}
	}

	if sel, err := q.ClickableByText(ctx, submitTexts); err == nil && sel != "" {
		return sel, "text"
	}

	for _, sel := range submitSelectors {
		if visible, err := q.SelectorVisible(ctx, sel); err == nil && visible {
			return sel, "common-css"
		}
	}
	return "", "none"
}
