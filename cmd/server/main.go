package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/api"
	"github.com/clinical-risk-fusion/internal/app"
	"github.com/clinical-risk-fusion/internal/config"
	"github.com/clinical-risk-fusion/internal/logging"
	"github.com/clinical-risk-fusion/internal/setup"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Check for setup subcommand
	if args := flag.Args(); len(args) > 0 && args[0] == "setup" {
		logger := logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.ErrorLevel)

		cli := setup.NewCLI(configManager, logger, os.Stdin, os.Stdout)
		if err := cli.Run(ctx, args[1:]); err != nil {
			if errors.Is(err, setup.ErrInvalidConfig) {
				os.Exit(1)
			}
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer closer.Close()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
		"config_file": configManager.ConfigFileUsed(),
	}).Info("Starting clinical risk fusion server")

	server := api.NewServer(cfg, application.Diagnosis, logger)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
