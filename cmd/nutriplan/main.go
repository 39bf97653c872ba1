package main

import (
	"context"
	"fmt"
	"os"

	"nutriplan/internal/app"
	"nutriplan/internal/cli"
	"nutriplan/internal/config"
)

func main() {
	open := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return app.New(ctx, cfg)
	}

	if err := cli.NewRootCmd(open).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
