// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cobra already prints the error
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		osExit(1)
	}
}

// For CLI unit tests...
var osExit = os.Exit
