package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/guiyumin/biliget/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.Execute(ctx)
	_ = zap.L().Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			color.New(color.FgYellow).Fprintln(os.Stderr, "Interrupted")
			os.Exit(130)
		}
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
