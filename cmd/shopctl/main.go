package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	err := a.rootCommand().ExecuteContext(ctx)
	a.close()
	cancel()
	if err != nil {
		renderError(os.Stderr, err)
		os.Exit(1)
	}
}
