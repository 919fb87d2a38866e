// Package app wires the process-wide singletons shared by the HTTP and MCP
// entry points: the knowledge base, the transcription provider and the
// imaging handle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/config"
	"github.com/clinical-risk-fusion/internal/database"
	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/fusion"
	"github.com/clinical-risk-fusion/internal/imaging"
	"github.com/clinical-risk-fusion/internal/knowledge"
	"github.com/clinical-risk-fusion/internal/service"
	"github.com/clinical-risk-fusion/internal/transcription"
	"github.com/clinical-risk-fusion/pkg/symptoms"
)

// App holds everything built once at start-up
type App struct {
	Config      *domain.Config
	Logger      *logrus.Logger
	Knowledge   *knowledge.Base
	Transcriber domain.Transcriber
	Imaging     *imaging.Handle
	Diagnosis   *service.DiagnosisService
}

// New loads the knowledge base and builds the pipeline. Provider credentials
// are not required here; a missing key surfaces on first transcription.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	start := time.Now()

	kb, err := LoadKnowledge(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	transcriber, err := transcription.New(cfg.Transcription, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}
	if !transcriber.IsConfigured() {
		logger.WithField("provider", transcriber.Name()).Warn("Transcription provider has no usable API key")
	}

	handle := imaging.NewHandle(imaging.RemoteLoader(cfg.Imaging), logger)

	diagnosis := service.NewDiagnosisService(
		logger,
		transcriber,
		handle,
		symptoms.Default(),
		fusion.NewEngine(kb, logger),
	)

	logger.WithFields(logrus.Fields{
		"knowledge_source": cfg.Knowledge.Source,
		"conditions":       kb.Summary(),
		"provider":         transcriber.Name(),
		"duration_ms":      time.Since(start).Milliseconds(),
	}).Info("Application initialized")

	return &App{
		Config:      cfg,
		Logger:      logger,
		Knowledge:   kb,
		Transcriber: transcriber,
		Imaging:     handle,
		Diagnosis:   diagnosis,
	}, nil
}

// LoadKnowledge reads the knowledge base from the configured source. The
// database, when used, is only held open for the load.
func LoadKnowledge(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*knowledge.Base, error) {
	switch cfg.Knowledge.Source {
	case "", config.SourceBuiltin:
		return knowledge.Default(), nil
	case config.SourceYAML:
		return knowledge.LoadYAML(cfg.Knowledge.Path)
	case config.SourceDatabase:
		return loadFromDatabase(ctx, cfg.Database, logger)
	default:
		return nil, domain.NewConfigurationError(fmt.Sprintf("unknown knowledge.source %q", cfg.Knowledge.Source))
	}
}

func loadFromDatabase(ctx context.Context, dbConfig domain.DatabaseConfig, logger *logrus.Logger) (*knowledge.Base, error) {
	db, err := database.Open(ctx, dbConfig, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if dbConfig.MigrateOnStart {
		runner, err := database.NewMigrationRunner(db, logger)
		if err != nil {
			return nil, err
		}
		if err := runner.Up(ctx); err != nil {
			return nil, err
		}
	}

	return knowledge.LoadSQL(ctx, db.SQL)
}
