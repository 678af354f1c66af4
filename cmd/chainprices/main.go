package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/app"
	"github.com/drstein77/chainprices/internal/config"
	"github.com/drstein77/chainprices/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Cancel the root context on CTRL+C or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	option := config.NewOptions()
	if err := option.Parse(os.Args[1:], os.Stderr); err != nil {
		if code := app.ExitCode(err); code != 0 {
			fmt.Fprintln(os.Stderr, err)
			return code
		}
		return 0
	}

	nLogger, err := logger.NewLogger(option.LogLevel())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer nLogger.Sync()

	if err := app.NewApp(option, nLogger, os.Stdout).Run(ctx); err != nil {
		nLogger.Error("run failed", zap.Error(err))
		return app.ExitCode(err)
	}
	return 0
}
