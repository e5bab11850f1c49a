package main

import (
	"context"
	"os"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server"
	"github.com/dmitrijs2005/taskkeeper/internal/server/config"
	gfshutdown "github.com/gelmium/graceful-shutdown"
)

const shutdownTimeout = 30 * time.Second

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "Failed to create application", "error", err)
		os.Exit(1)
	}

	app.Start(ctx)

	// a server that dies on its own (port in use, etc.) takes the process down
	go func() {
		<-app.Done()
		if err := app.Err(); err != nil {
			logger.Error(ctx, "Server stopped", "error", err)
			_ = app.Stop(ctx)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		ctx,
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"taskkeeper": func(ctx context.Context) error {
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info(ctx, "Application exited", "code", exitCode)
	os.Exit(exitCode)
}
