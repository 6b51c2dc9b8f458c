// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkin-cli/internal/config"
	"github.com/xkilldash9x/checkin-cli/internal/observability"
)

var cfgFile string

// ErrPrecondition marks configuration and validation failures that abort the
// run before any attempt is made.
var ErrPrecondition = errors.New("invalid configuration")

// ErrCheckinFailed marks a run that exhausted its attempts without success.
var ErrCheckinFailed = errors.New("check-in did not succeed")

// NewRootCommand builds the command tree. A fresh instance per invocation
// keeps flag state from leaking between runs in tests.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "checkin-cli",
		Short:         "Automated daily check-in against bot-hostile services.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "checkin-cli"})
				return fmt.Errorf("%w: %v", ErrPrecondition, err)
			}

			var loggerCfg struct {
				Logger config.LoggerConfig `mapstructure:"logger"`
			}
			if err := viper.Unmarshal(&loggerCfg); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "checkin-cli"})
				return fmt.Errorf("%w: failed to unmarshal logger config: %v", ErrPrecondition, err)
			}
			observability.InitializeLogger(loggerCfg.Logger)
			observability.GetLogger().Info("Starting checkin-cli", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// Execute runs the command tree under the given context.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	err := root.ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// ExitCode maps an Execute error to the process exit code contract:
// 0 success, 1 run failure, 2 precondition failure, 130 interrupted.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, ErrPrecondition):
		return 2
	default:
		return 1
	}
}

// initializeConfig reads the config file and CHECKIN_* environment variables.
func initializeConfig() error {
	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("could not resolve config path %q: %w", cfgFile, err)
		}
		viper.SetConfigFile(expanded)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("CHECKIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults plus env vars carry the run.
	}
	return nil
}
