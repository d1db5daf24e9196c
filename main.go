package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apexarb/dexarb/cmd"
	"github.com/apexarb/dexarb/utils"
)

func main() {
	defer utils.CleanupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
