// Command runlog operates training-run documents: it creates collections,
// inspects and exports runs, and records epochs streamed on stdin.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := a.execute(ctx, os.Args[1:]); err != nil {
		a.logger.Error("command failed", "error", err)
		stop()
		os.Exit(exitCode(err))
	}
}
