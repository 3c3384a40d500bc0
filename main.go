// Package main is the entry point of the CSRF guard service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dilneiss/CSRFProtector/bootstrap"
	"github.com/dilneiss/CSRFProtector/cmd"
)

// run initializes and starts the service.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "tokens" {
		// The command already knows it is "tokens"
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		if err := cmd.NewTokensCmd().Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
