package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"blog-web/internal/cli"
	"blog-web/internal/config"
	sharedLogger "blog-web/shared/logger"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var logger *zap.Logger
	newApp := func(ctx context.Context) (*cli.App, error) {
		cfg, err := config.LoadClientConfig(".env")
		if err != nil {
			return nil, err
		}
		logger, err = sharedLogger.New(sharedLogger.Config{
			Level:      cfg.LogLevel,
			Encoding:   cfg.LogEncoding,
			OutputPath: "stderr",
			Service:    "blogctl",
		})
		if err != nil {
			return nil, err
		}
		return cli.NewApp(cfg, logger)
	}

	err := cli.NewRunner(newApp).Execute(ctx)
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
