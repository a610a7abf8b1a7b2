// Package main is the entry point for the cellar package manager.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/cmd/cellar/commands"
	"go.trai.ch/cellar/internal/app"
	"go.trai.ch/cellar/internal/core/domain"
	_ "go.trai.ch/cellar/internal/wiring"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// 0. Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Initialize application components
	components, _, err := graft.ExecuteFor[*app.Components](ctx)
	if err != nil {
		// Logger is not available yet if initialization failed
		// Write directly to stderr
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}

	// 2. Interface - CLI
	cli := commands.New(components.App)
	cli.SetArgs(args)

	// 3. Execution
	if err := cli.Execute(ctx); err != nil {
		// The report already names every failed step.
		if errors.Is(err, domain.ErrInstallFailed) {
			return 1
		}
		components.Logger.Error(err)
		return 1
	}
	return 0
}
