// File: internal/invoke/invoke.go

// Package invoke performs the check-in action over an authenticated session.
// The primary channel is a direct POST from the session's HTTP client; when
// that does not classify as success and a live browser page is available, a
// same-origin in-page fetch is tried as the secondary channel.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/auth"
	"github.com/xkilldash9x/checkin-cli/internal/classify"
	"github.com/xkilldash9x/checkin-cli/internal/config"
	"github.com/xkilldash9x/checkin-cli/internal/network"
)

// ErrActionFailed marks an action that got no successful classification from
// any channel.
var ErrActionFailed = errors.New("check-in action failed")

// StatusTransportFailure is the sentinel status code recorded when no HTTP
// response was received at all.
const StatusTransportFailure = -1

// Channel names recorded on results.
const (
	ChannelDirect = "direct"
	ChannelInPage = "in-page"
)

const maxActionBodyBytes = 1 << 20

// Result captures the observable outcome of one action request.
type Result struct {
	StatusCode int
	Body       string
	Channel    string
}

// Invoker executes the action and classifies the response.
type Invoker struct {
	target     config.TargetConfig
	classifier *classify.Classifier
	logger     *zap.Logger
}

// New builds an invoker.
func New(target config.TargetConfig, classifier *classify.Classifier, logger *zap.Logger) *Invoker {
	return &Invoker{target: target, classifier: classifier, logger: logger.Named("invoker")}
}

// Invoke runs the action over the session. The returned Result and Verdict
// describe the decisive channel; err wraps ErrActionFailed when neither
// channel produced a success.
func (inv *Invoker) Invoke(ctx context.Context, session *auth.Session) (Result, classify.Verdict, error) {
	result := inv.invokeDirect(ctx, session)
	verdict := inv.classifier.Classify(result.StatusCode, result.Body)
	inv.logResult(result, verdict)
	if verdict.Success {
		return result, verdict, nil
	}

	if session.Page == nil {
		return result, verdict, fmt.Errorf("%w: %s", ErrActionFailed, verdict.Reason)
	}

	// The direct channel may be rejected by the front door even with valid
	// cookies; a fetch issued from the page itself is indistinguishable from
	// the web console's own request.
	fallback, err := inv.invokeInPage(ctx, session)
	if err != nil {
		inv.snapshot(session.Page)
		return result, verdict, fmt.Errorf("%w: direct channel: %s; in-page channel: %v",
			ErrActionFailed, verdict.Reason, err)
	}
	fallbackVerdict := inv.classifier.Classify(fallback.StatusCode, fallback.Body)
	inv.logResult(fallback, fallbackVerdict)
	if fallbackVerdict.Success {
		return fallback, fallbackVerdict, nil
	}
	return fallback, fallbackVerdict, fmt.Errorf("%w: %s", ErrActionFailed, fallbackVerdict.Reason)
}

// invokeDirect posts the action from the session's HTTP client. Transport
// failures are folded into the result with the sentinel status code.
func (inv *Invoker) invokeDirect(ctx context.Context, session *auth.Session) Result {
	result := Result{StatusCode: StatusTransportFailure, Channel: ChannelDirect}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inv.target.ActionURL(), nil)
	if err != nil {
		result.Body = err.Error()
		return result
	}
	network.ApplyHeaders(req, session.Headers)

	resp, err := session.Client.Do(req)
	if err != nil {
		result.Body = err.Error()
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxActionBodyBytes))
	if err != nil {
		result.Body = fmt.Sprintf("failed to read response: %v", err)
		return result
	}
	result.StatusCode = resp.StatusCode
	result.Body = string(body)
	return result
}

// invokeInPage posts the action from inside the live page.
func (inv *Invoker) invokeInPage(ctx context.Context, session *auth.Session) (Result, error) {
	headers := map[string]string{}
	for k := range session.Headers {
		// The browser forbids setting these on fetch; it supplies its own.
		switch http.CanonicalHeaderKey(k) {
		case "User-Agent", "Referer", "Origin", "Accept-Encoding":
			continue
		}
		headers[k] = session.Headers.Get(k)
	}

	status, body, err := session.Page.FetchPost(ctx, inv.target.ActionURL(), headers)
	if err != nil {
		return Result{}, err
	}
	return Result{StatusCode: status, Body: body, Channel: ChannelInPage}, nil
}

// snapshot persists a screenshot of the page state after the in-page channel
// threw, for post-mortem of what the console actually showed.
func (inv *Invoker) snapshot(page auth.PageRunner) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	buf, err := page.Screenshot(ctx)
	if err != nil {
		inv.logger.Debug("Failed to capture diagnostic screenshot", zap.Error(err))
		return
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("checkin-action-%d.png", time.Now().Unix()))
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		inv.logger.Debug("Failed to write diagnostic screenshot", zap.Error(err))
		return
	}
	inv.logger.Info("Saved diagnostic screenshot", zap.String("path", path))
}

func (inv *Invoker) logResult(result Result, verdict classify.Verdict) {
	inv.logger.Info("Action channel result",
		zap.String("channel", result.Channel),
		zap.Int("status", result.StatusCode),
		zap.Bool("success", verdict.Success),
		zap.String("tier", verdict.Tier),
		zap.String("reason", verdict.Reason),
	)
}
