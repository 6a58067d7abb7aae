package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"fleet-monitor/telemetry/cmd/telemetryd/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewTelemetrydCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
