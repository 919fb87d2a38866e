package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Imaging       ImagingConfig       `mapstructure:"imaging"`
	Knowledge     KnowledgeConfig     `mapstructure:"knowledge"`
	Database      DatabaseConfig      `mapstructure:"database"`
	MCP           MCPConfig           `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// TranscriptionConfig selects and tunes the speech-to-text provider
type TranscriptionConfig struct {
	Provider       string               `mapstructure:"provider"` // "whisper", "gemini", "deepgram"
	Timeout        time.Duration        `mapstructure:"timeout"`
	MaxRetries     int                  `mapstructure:"max_retries"`
	InitialBackoff time.Duration        `mapstructure:"initial_backoff"`
	RateLimit      float64              `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Whisper        ProviderConfig       `mapstructure:"whisper"`
	Gemini         ProviderConfig       `mapstructure:"gemini"`
	Deepgram       ProviderConfig       `mapstructure:"deepgram"`
}

// ProviderConfig holds credentials and endpoint of one transcription provider
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// ImagingConfig points at the external chest X-ray classifier
type ImagingConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Threshold float64       `mapstructure:"threshold"`
}

// KnowledgeConfig selects where the knowledge base is loaded from
type KnowledgeConfig struct {
	Source string `mapstructure:"source"` // "builtin", "yaml", "database"
	Path   string `mapstructure:"path"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite", "postgres"
	DSN             string        `mapstructure:"dsn"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
