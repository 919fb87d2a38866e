// Command mcp-server exposes the risk pipeline to MCP clients over stdio.
// Stdout carries the protocol, so logs always go to stderr.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/clinical-risk-fusion/internal/app"
	"github.com/clinical-risk-fusion/internal/config"
	"github.com/clinical-risk-fusion/internal/logging"
	"github.com/clinical-risk-fusion/internal/mcp"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml (searched for when empty)")
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading configuration")
	flag.Parse()

	// Load configuration
	configManager, err := config.NewManager(config.WithConfigFile(*configFile), config.WithEnvFile(*envFile))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	loggingConfig := cfg.Logging
	if loggingConfig.Output != "file" {
		loggingConfig.Output = "stderr"
	}
	logger, closer, err := logging.New(loggingConfig)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	server := mcp.NewServer(cfg, application.Diagnosis, application.Knowledge, logger)
	logger.WithField("server", cfg.MCP.ServerName).Info("Starting MCP server on stdio")

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("MCP server stopped")
}
