package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"dms_transfer/cli"
)

func main() {
	debug.SetGCPercent(666)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
