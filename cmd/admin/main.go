package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/taskkeeper/internal/admincli"
	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server"
	"github.com/dmitrijs2005/taskkeeper/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	users, closeFn, err := server.OpenUsers(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeFn()

	if _, err := admincli.CreateAdmin(ctx, users, admincli.NewPrompter(os.Stdin, os.Stdout)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		closeFn()
		os.Exit(1)
	}
}
