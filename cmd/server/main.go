package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tutoring-api/internal/config"
	"tutoring-api/internal/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tutoring-api",
		Short:         "Tutoring marketplace API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := serveCmd()
	root.AddCommand(serve, migrateCmd())
	// bare invocation serves
	root.RunE = serve.RunE
	return root
}

func setup() (config.Config, error) {
	cfg := config.Load()
	_, err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return cfg, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
