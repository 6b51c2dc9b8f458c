// File: cmd/run.go
package cmd

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/auth"
	"github.com/xkilldash9x/checkin-cli/internal/classify"
	"github.com/xkilldash9x/checkin-cli/internal/config"
	"github.com/xkilldash9x/checkin-cli/internal/engine"
	"github.com/xkilldash9x/checkin-cli/internal/invoke"
	"github.com/xkilldash9x/checkin-cli/internal/notify"
	"github.com/xkilldash9x/checkin-cli/internal/observability"
)

// Swapped out in tests for deterministic event timestamps.
var timeNow = time.Now

func newRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Perform the authenticated check-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPrecondition, err)
			}
			return runCheckin(cmd, cfg)
		},
	}

	flags := runCmd.Flags()
	flags.Bool("headed", false, "run the browser with a visible window")
	flags.Int("slowmo", 0, "delay between browser interactions in milliseconds")
	flags.String("viewport", "", "browser viewport as WIDTHxHEIGHT")
	flags.String("login-mode", "", "authentication strategy: browser, api, cookie or auto")
	flags.Int("retries", -1, "retry budget after the first attempt")
	flags.Int("preview-limit", -1, "max bytes of a failure response in notifications")
	flags.Int("preview-success-limit", -1, "max bytes of a success response in notifications")

	bind := func(key, flag string) {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
	bind("browser.headed", "headed")
	bind("browser.slow_motion_ms", "slowmo")
	bind("browser.viewport", "viewport")

	// The remaining flags only override when explicitly set, so the viper
	// binding cannot apply their off defaults.
	runCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if v, _ := flags.GetString("login-mode"); v != "" {
			viper.Set("target.login_mode", v)
		}
		if v, _ := flags.GetInt("retries"); v >= 0 {
			viper.Set("retry.budget", v)
		}
		if v, _ := flags.GetInt("preview-limit"); v >= 0 {
			viper.Set("notify.failure_preview_limit", v)
		}
		if v, _ := flags.GetInt("preview-success-limit"); v >= 0 {
			viper.Set("notify.success_preview_limit", v)
		}
	}
	return runCmd
}

func runCheckin(cmd *cobra.Command, cfg *config.Config) error {
	logger := observability.GetLogger()
	logger.Info("Run configured",
		zap.String("target", cfg.Target.BaseURL),
		zap.String("identity", cfg.Credentials.MaskedIdentity()),
		zap.String("login_mode", cfg.Target.LoginMode),
		zap.Int("retry_budget", cfg.Retry.Budget),
	)

	classifier := classify.New(cfg.Classify)
	invoker := invoke.New(cfg.Target, classifier, logger)
	eng := engine.New(cfg, logger,
		func() []auth.Strategy { return auth.ChainFor(cfg, logger) },
		invoker,
	)

	outcome, runErr := eng.Run(cmd.Context())

	dispatcher := notify.NewDispatcher(logger, notify.ChannelsFromConfig(cfg.Notify, nil)...)
	if err := dispatcher.Dispatch(cmd.Context(), buildEvent(cfg, outcome)); err != nil {
		// Channel failures are reported but never change the exit status.
		logger.Warn("Notification dispatch incomplete", zap.Error(err))
	}

	if runErr != nil {
		return runErr
	}
	if !outcome.Success {
		return ErrCheckinFailed
	}
	return nil
}

// buildEvent summarizes the outcome for the notification channels.
func buildEvent(cfg *config.Config, outcome *engine.Outcome) notify.Event {
	host := cfg.Target.BaseURL
	if u, err := url.Parse(cfg.Target.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}

	ev := notify.Event{
		Success:   outcome.Success,
		Title:     fmt.Sprintf("%s 签到", host),
		Target:    cfg.Target.BaseURL,
		Identity:  cfg.Credentials.MaskedIdentity(),
		Attempts:  outcome.Attempts,
		Timestamp: timeNow(),
	}
	if last := outcome.Last; last != nil {
		ev.Strategy = last.Strategy
		ev.StatusCode = last.Result.StatusCode
		ev.Channel = last.Result.Channel
		ev.Reason = last.Verdict.Reason
		if !outcome.Success && last.Err != nil {
			ev.Reason = last.Err.Error()
		}

		limit := cfg.Notify.FailurePreviewLimit
		if outcome.Success {
			limit = cfg.Notify.SuccessPreviewLimit
		}
		ev.Preview = notify.Preview(last.Result.Body, limit)
	}
	return ev
}
