// File: cmd/pngprotect/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pngprotect/pngprotect-cli/cmd"
	"github.com/pngprotect/pngprotect-cli/internal/observability"
)

// osExit is a variable so tests can intercept the exit path.
var osExit = os.Exit

func main() {
	// Interrupt signals cancel the context so in-flight synthesis stops at the
	// next step boundary instead of being killed mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			osExit(130)
			return
		}
		osExit(1)
	}
}
