package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/foxxcyber/rappi-flow/internal/cli"
	"github.com/foxxcyber/rappi-flow/internal/config"
)

func main() {
	// Load .env file if it exists
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.New(config.Load(), os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, "Run 'rappi-cli help' for usage.")
			os.Exit(2)
		}
		os.Exit(1)
	}
}
