package domain

import (
	"context"
)

// Transcriber is the capability every speech-to-text provider exposes
type Transcriber interface {
	// Name returns the provider key used in configuration
	Name() string

	// IsConfigured reports whether usable credentials are present
	IsConfigured() bool

	// Transcribe converts an audio file to text. An empty language means provider default.
	Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error)
}

// ImageClassifier is the opaque imaging collaborator
type ImageClassifier interface {
	Classify(ctx context.Context, image []byte) (bool, error)
}

// SymptomExtractor maps free text to symptom flags
type SymptomExtractor interface {
	Extract(text string) SymptomFlags
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetTranscriptionConfig() *TranscriptionConfig
	GetDatabaseConfig() *DatabaseConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
