package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/middleware"
	"github.com/clinical-risk-fusion/internal/service"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// defaultMaxUploadBytes bounds each uploaded image or voice note
const defaultMaxUploadBytes = 25 << 20

// Server represents the HTTP server
type Server struct {
	config    *domain.Config
	diagnosis *service.DiagnosisService
	logger    *logrus.Logger
	router    *gin.Engine
	server    *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(config *domain.Config, diagnosis *service.DiagnosisService, logger *logrus.Logger) *Server {
	// Set Gin mode based on environment
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if config.Server.MaxUploadBytes <= 0 {
		config.Server.MaxUploadBytes = defaultMaxUploadBytes
	}

	router := gin.New()
	router.MaxMultipartMemory = config.Server.MaxUploadBytes

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(cors.New(corsConfig(config.Server.AllowedOrigins)))

	server := &Server{
		config:    config,
		diagnosis: diagnosis,
		logger:    logger,
		router:    router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.POST("/upload-scan", s.handleUploadScan)
		api.POST("/symptoms/transcribe", s.handleTranscribeSymptoms)
		api.POST("/symptoms/extract", s.handleExtractSymptoms)
		api.POST("/diagnosis/multimodal", s.handleMultimodalDiagnosis)
		api.GET("/transcription/status", s.handleTranscriptionStatus)
	}
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", middleware.RequestIDHeader}
	config.ExposeHeaders = []string{"Content-Length", middleware.RequestIDHeader}
	config.MaxAge = 12 * time.Hour
	return config
}
