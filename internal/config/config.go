package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/transcription"
)

// EnvPrefix prefixes every environment override, e.g. RISK_FUSION_SERVER_PORT
const EnvPrefix = "RISK_FUSION"

// Knowledge base sources
const (
	SourceBuiltin  = "builtin"
	SourceYAML     = "yaml"
	SourceDatabase = "database"
)

// conventionalEnv lets the provider credentials be set with the variable
// names the provider SDKs document
var conventionalEnv = map[string]string{
	"transcription.provider":         "STT_PROVIDER",
	"transcription.whisper.api_key":  "OPENAI_API_KEY",
	"transcription.whisper.model":    "WHISPER_MODEL",
	"transcription.gemini.api_key":   "GOOGLE_API_KEY",
	"transcription.gemini.model":     "GEMINI_MODEL",
	"transcription.deepgram.api_key": "DEEPGRAM_API_KEY",
	"transcription.deepgram.model":   "DEEPGRAM_MODEL",
}

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	envFile    string
	config     *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// Option customises where configuration is read from
type Option func(*Manager)

// WithConfigFile reads path instead of searching for config.yaml
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// WithEnvFile loads path instead of ./.env
func WithEnvFile(path string) Option {
	return func(m *Manager) {
		m.envFile = path
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{envFile: ".env"}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Variables already in the environment win over the .env file
	if err := godotenv.Load(m.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading env file %s: %w", m.envFile, err)
	}

	v := viper.New()
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/clinical-risk-fusion/")
	}

	// Set environment variable prefix and enable automatic env binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range conventionalEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	// Set default values
	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_upload_bytes", 25<<20)
	v.SetDefault("server.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "")

	// Transcription defaults
	v.SetDefault("transcription.provider", transcription.ProviderWhisper)
	v.SetDefault("transcription.timeout", "90s")
	v.SetDefault("transcription.max_retries", 3)
	v.SetDefault("transcription.initial_backoff", "2s")
	v.SetDefault("transcription.rate_limit", 0)
	v.SetDefault("transcription.circuit_breaker.enabled", true)
	v.SetDefault("transcription.circuit_breaker.max_requests", 1)
	v.SetDefault("transcription.circuit_breaker.interval", "0s")
	v.SetDefault("transcription.circuit_breaker.timeout", "60s")
	v.SetDefault("transcription.circuit_breaker.consecutive_failures", 3)
	for _, provider := range transcription.Providers {
		v.SetDefault("transcription."+provider+".api_key", "")
		v.SetDefault("transcription."+provider+".base_url", "")
		v.SetDefault("transcription."+provider+".model", "")
	}

	// Imaging defaults
	v.SetDefault("imaging.endpoint", "")
	v.SetDefault("imaging.timeout", "30s")
	v.SetDefault("imaging.threshold", 0.5)

	// Knowledge base defaults
	v.SetDefault("knowledge.source", SourceBuiltin)
	v.SetDefault("knowledge.path", "")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// MCP defaults
	v.SetDefault("mcp.server_name", "clinical-risk-fusion")
	v.SetDefault("mcp.server_version", "v1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetTranscriptionConfig returns transcription configuration
func (m *Manager) GetTranscriptionConfig() *domain.TranscriptionConfig {
	return &m.config.Transcription
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// ConfigFileUsed reports the file that was read, or "" when none was found
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks a configuration for values the pipeline cannot run with.
// Missing provider credentials are not an error here; the provider reports
// them when first used.
func Validate(config *domain.Config) error {
	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return domain.NewConfigurationError(fmt.Sprintf("invalid server port: %d", config.Server.Port))
	}
	if config.Server.MaxUploadBytes < 0 {
		return domain.NewConfigurationError("server.max_upload_bytes must not be negative")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return domain.NewConfigurationError(fmt.Sprintf("invalid log level: %s", config.Logging.Level))
	}
	if f := strings.ToLower(config.Logging.Format); f != "json" && f != "text" {
		return domain.NewConfigurationError(fmt.Sprintf("invalid log format: %s", config.Logging.Format))
	}
	if config.Logging.Output == "file" && config.Logging.Filename == "" {
		return domain.NewConfigurationError("logging.filename is required when logging.output is file")
	}

	// Validate transcription configuration
	t := config.Transcription
	if !isProvider(t.Provider) {
		return domain.NewConfigurationError(fmt.Sprintf("unknown transcription provider %q, expected one of %v", t.Provider, transcription.Providers))
	}
	if t.Timeout < 0 || t.InitialBackoff < 0 {
		return domain.NewConfigurationError("transcription timeouts must not be negative")
	}
	if t.MaxRetries < 0 {
		return domain.NewConfigurationError(fmt.Sprintf("invalid transcription.max_retries: %d", t.MaxRetries))
	}
	if t.RateLimit < 0 {
		return domain.NewConfigurationError(fmt.Sprintf("invalid transcription.rate_limit: %v", t.RateLimit))
	}

	// Validate imaging configuration
	if config.Imaging.Threshold < 0 || config.Imaging.Threshold >= 1 {
		return domain.NewConfigurationError(fmt.Sprintf("imaging.threshold must be in [0,1), got %v", config.Imaging.Threshold))
	}

	// Validate knowledge base source
	switch config.Knowledge.Source {
	case SourceBuiltin:
	case SourceYAML:
		if config.Knowledge.Path == "" {
			return domain.NewConfigurationError("knowledge.path is required when knowledge.source is yaml")
		}
	case SourceDatabase:
		if config.Database.DSN == "" {
			return domain.NewConfigurationError("database.dsn is required when knowledge.source is database")
		}
	default:
		return domain.NewConfigurationError(fmt.Sprintf("unknown knowledge.source %q", config.Knowledge.Source))
	}

	if d := config.Database.Driver; d != "" && d != "sqlite" && d != "postgres" {
		return domain.NewConfigurationError(fmt.Sprintf("unsupported database driver %q", d))
	}

	return nil
}

func isProvider(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range transcription.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

// lookupEnv reports the first of names set in the environment
func lookupEnv(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return name, true
		}
	}
	return "", false
}

// CredentialSource names the environment variable a provider key came from,
// or "config" when it was set in the config file, or "" when unset
func (m *Manager) CredentialSource(provider string) string {
	key := "transcription." + provider + ".api_key"
	env, ok := conventionalEnv[key]
	if ok {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if name, found := lookupEnv(prefixed, env); found {
			return name
		}
	}
	if m.v.InConfig(key) {
		return "config"
	}
	return ""
}
