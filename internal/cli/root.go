// Package cli holds the phishguard command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-wisp/anti-phishing/internal/config"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "phishguard",
		Short:         "phishguard: URL and page phishing scorer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("phishguard {{.Version}}\n")

	cmd.PersistentFlags().String("config", getenvDefault(config.EnvConfigPath, ""), "Config file path (defaults to PHISHGUARD_CONFIG or the search paths)")
	cmd.PersistentFlags().String("log-level", "", "Override app.log_level: debug|info|warn|error")

	cmd.AddCommand(newServeCmd(version))
	cmd.AddCommand(newScoreCmd())
	cmd.AddCommand(newUpdateCmd())

	return cmd
}

// loadConfig reads the config named by --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Root().PersistentFlags().GetString("log-level"); level != "" {
		cfg.App.LogLevel = level
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the process logger from the app section.
func newLogger(app config.AppConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(app.LogLevel)}
	if strings.EqualFold(app.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs the config's logger as the slog default.
func setupLogging(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := newLogger(cfg.App, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return logger
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
