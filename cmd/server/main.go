package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/api"
	"github.com/cg-order-portal/internal/config"
	"github.com/cg-order-portal/internal/setup"
)

const usage = `cg-order-portal HTTP server.

Usage:
  server [-c <config>]
  server -h | --help

Options:
  -h --help             Show this screen.
  -c --config=<config>  Configuration file.
`

type options struct {
	Config string `docopt:"--config"`
}

// parseOptions binds argv to options. A nil argv reads os.Args.
func parseOptions(parser *docopt.Parser, argv []string) (options, error) {
	var opts options
	args, err := parser.ParseArgs(usage, argv, "")
	if err != nil {
		return opts, err
	}
	err = args.Bind(&opts)
	return opts, err
}

func main() {
	opts, err := parseOptions(docopt.DefaultParser, nil)
	if err != nil {
		log.Fatalf("Arguments cannot be parsed: %v", err)
	}

	// Load configuration
	configManager, err := config.NewManager(opts.Config)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := setup.Build(ctx, configManager)
	if err != nil {
		log.Fatalf("Failed to create order portal: %v", err)
	}
	defer app.Close()

	cfg := configManager.GetConfig()
	app.Logger.WithFields(logrus.Fields{
		"host":     cfg.Server.Host,
		"port":     cfg.Server.Port,
		"database": cfg.Database.Driver,
		"archive":  app.Archive.Driver(),
	}).Info("Starting order portal")

	server := api.NewServer(configManager, app.ServerDeps())

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		app.Logger.WithError(err).Error("Server failed")
		app.Close()
		os.Exit(1)
	}

	app.Logger.Info("Server stopped")
}
