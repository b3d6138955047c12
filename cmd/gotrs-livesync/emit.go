package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gotrs-io/gotrs-livesync/internal/channel"
	"github.com/gotrs-io/gotrs-livesync/internal/config"
	"github.com/gotrs-io/gotrs-livesync/internal/events"
)

var emitCmd = &cobra.Command{
	Use:   "emit [file]",
	Short: "Publish a notification on the tenant's Redis channel",
	Long: `Emit validates a notification and publishes it on the tenant's Redis
events channel, which is useful for exercising a running watch. The JSON
is read from the file argument or from stdin.

Requires channel.transport=redis.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEmit,
}

func init() {
	rootCmd.AddCommand(emitCmd)
}

func runEmit(cmd *cobra.Command, args []string) error {
	loader, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := loader.Get()
	if cfg.Channel.Transport != config.TransportRedis {
		return errors.New("emit needs channel.transport=redis")
	}

	var raw []byte
	if len(args) == 1 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return err
	}

	ev, err := events.Decode(raw)
	if err != nil {
		return err
	}

	r, err := channel.NewRedisFromURL(cfg.Redis.URL, channel.RedisConfig{
		Tenant:    cfg.Channel.Tenant,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, logger, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.PublishEvent(cmd.Context(), ev); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s\n", ev.Action(), channel.EventsKey(cfg.Redis.KeyPrefix, cfg.Channel.Tenant))
	return nil
}
