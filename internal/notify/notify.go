// File: internal/notify/notify.go

// Package notify reports the final outcome of a run. Channels are optional;
// the console summary through the logger is always emitted and is the only
// delivery when nothing is configured. Channel failures never affect the
// run's exit status.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotification marks a delivery failure on one or more channels.
var ErrNotification = errors.New("notification delivery failed")

// Event is the outcome summary pushed to every channel.
type Event struct {
	Success    bool      `json:"success"`
	Title      string    `json:"title"`
	Target     string    `json:"target"`
	Identity   string    `json:"identity"`
	Attempts   int       `json:"attempts"`
	Strategy   string    `json:"strategy"`
	StatusCode int       `json:"status_code"`
	Channel    string    `json:"channel"`
	Reason     string    `json:"reason"`
	Preview    string    `json:"preview,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// FormatText renders the event as plain text for console-style channels.
func (ev Event) FormatText() string {
	state := "FAILED"
	if ev.Success {
		state = "OK"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", state, ev.Title)
	fmt.Fprintf(&b, "target: %s\n", ev.Target)
	fmt.Fprintf(&b, "account: %s\n", ev.Identity)
	fmt.Fprintf(&b, "attempts: %d, strategy: %s, channel: %s, status: %d\n",
		ev.Attempts, ev.Strategy, ev.Channel, ev.StatusCode)
	fmt.Fprintf(&b, "verdict: %s", ev.Reason)
	if ev.Preview != "" {
		fmt.Fprintf(&b, "\nresponse:\n%s", ev.Preview)
	}
	return b.String()
}

// FormatHTML renders the event for channels that display HTML.
func (ev Event) FormatHTML() string {
	state := "❌ 失败"
	if ev.Success {
		state = "✅ 成功"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<p><b>%s</b> — %s</p>", state, ev.Title)
	fmt.Fprintf(&b, "<p>目标: %s<br>账号: %s</p>", ev.Target, ev.Identity)
	fmt.Fprintf(&b, "<p>尝试次数: %d｜策略: %s｜通道: %s｜状态码: %d</p>",
		ev.Attempts, ev.Strategy, ev.Channel, ev.StatusCode)
	fmt.Fprintf(&b, "<p>%s</p>", ev.Reason)
	if ev.Preview != "" {
		fmt.Fprintf(&b, "<pre>%s</pre>", ev.Preview)
	}
	return b.String()
}

// Channel delivers an event to one external service.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Dispatcher fans an event out to the configured channels, sequentially and
// isolated: one channel failing never stops the others.
type Dispatcher struct {
	logger   *zap.Logger
	channels []Channel
}

// NewDispatcher builds a dispatcher over the given channels.
func NewDispatcher(logger *zap.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{logger: logger.Named("notify"), channels: channels}
}

// Dispatch logs the console summary and sends the event to every channel.
// The returned error joins all channel failures under ErrNotification.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.logger.Info("Run outcome",
		zap.Bool("success", ev.Success),
		zap.Int("attempts", ev.Attempts),
		zap.String("strategy", ev.Strategy),
		zap.String("channel", ev.Channel),
		zap.Int("status", ev.StatusCode),
		zap.String("reason", ev.Reason),
	)
	if ev.Preview != "" {
		d.logger.Info("Response preview", zap.String("preview", ev.Preview))
	}

	var errs []error
	for _, ch := range d.channels {
		if err := ch.Send(ctx, ev); err != nil {
			d.logger.Warn("Notification channel failed", zap.String("channel", ch.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		d.logger.Info("Notification delivered", zap.String("channel", ch.Name()))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrNotification, errors.Join(errs...))
	}
	return nil
}
