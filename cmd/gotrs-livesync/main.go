package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gotrs-io/gotrs-livesync/internal/auth"
	"github.com/gotrs-io/gotrs-livesync/internal/channel"
	"github.com/gotrs-io/gotrs-livesync/internal/client"
	"github.com/gotrs-io/gotrs-livesync/internal/config"
	"github.com/gotrs-io/gotrs-livesync/internal/metrics"
	"github.com/gotrs-io/gotrs-livesync/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "gotrs-livesync",
	Short: "Keep a live ticket list in sync with a GOTRS tenant",
	Long: `gotrs-livesync seeds a ticket list from the REST API and keeps it
current from the tenant's push channel.

Settings come from an optional YAML file and GOTRS_* environment
variables (for example GOTRS_CHANNEL_TENANT).`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configFileFlag string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFileFlag, "config", "c", "", "Path to a YAML config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Console output is meant for
// terminals; anything else emits JSON lines.
func newLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.ParseLevel())
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// loadConfig reads and validates settings. The bootstrap logger is only
// used until the configured one exists.
func loadConfig() (*config.Loader, zerolog.Logger, error) {
	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	loader, err := config.Load(configFileFlag, boot)
	if err != nil {
		return nil, boot, err
	}
	cfg := loader.Get()
	if err := cfg.Validate(); err != nil {
		return nil, boot, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, newLogger(cfg.Logging, os.Stderr), nil
}

func newAPIClient(cfg *config.Config, logger zerolog.Logger) (*client.Client, error) {
	authenticator, err := auth.FromCredentials(cfg.API.APIKey, cfg.API.Token)
	if err != nil {
		return nil, err
	}
	return client.NewClient(client.Config{
		BaseURL:    cfg.API.BaseURL,
		Auth:       authenticator,
		Timeout:    cfg.API.Timeout,
		RetryCount: cfg.API.RetryCount,
		Logger:     logger,
		Debug:      cfg.Logging.ParseLevel() == zerolog.TraceLevel,
	}), nil
}

// closableChannel is a channel the process owns and must shut down.
type closableChannel interface {
	channel.Channel
	Close() error
}

func newChannel(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (closableChannel, error) {
	switch cfg.Channel.Transport {
	case config.TransportRedis:
		r, err := channel.NewRedisFromURL(cfg.Redis.URL, channel.RedisConfig{
			Tenant:    cfg.Channel.Tenant,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Linger:    cfg.Channel.Linger,
		}, logger, m)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		authenticator, err := auth.FromCredentials(cfg.API.APIKey, cfg.API.Token)
		if err != nil {
			return nil, err
		}
		return channel.NewWebSocket(channel.WebSocketConfig{
			URL:          cfg.Channel.URL,
			Tenant:       cfg.Channel.Tenant,
			Auth:         authenticator,
			PingInterval: cfg.Channel.PingInterval,
			ReconnectMin: cfg.Channel.ReconnectMin,
			ReconnectMax: cfg.Channel.ReconnectMax,
			Linger:       cfg.Channel.Linger,
		}, logger, m), nil
	}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeYAML(cmd.OutOrStdout(), version.GetInfo())
	},
}
