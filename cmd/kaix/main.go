// Command kaix runs the Agentic Planning Coordinator: a terminal
// front end that turns prompts into a plan/task graph and drives it to
// completion against a pluggable model provider.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "kaix:", err)
		os.Exit(1)
	}
}
