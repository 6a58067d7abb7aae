package app

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"fleet-monitor/telemetry/internal/config"
	"fleet-monitor/telemetry/pkg/log"
)

func NewTelemetrydCommand(ctx context.Context) *cobra.Command {
	opts := NewOptions()
	cmd := &cobra.Command{
		Use:          "telemetryd",
		Short:        "Live vehicle telemetry simulation and WebSocket fan-out",
		Long:         "telemetryd keeps the live telemetry of every registered vehicle, advances it on a fixed tick and pushes each update to connected observers.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			if err := loadEnvFile(opts.EnvFile); err != nil {
				return err
			}
			if err := log.Init(opts.LogOptions); err != nil {
				return err
			}
			defer log.Sync()

			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				log.Error(err, "invalid configuration")
				return err
			}

			if err := Run(ctx, cfg, log.Std()); err != nil {
				log.Error(err, "telemetryd exited with error")
				return err
			}
			return nil
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
