// Package setup reports whether the service is ready to run and registers the
// MCP server with desktop clients.
package setup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/app"
	"github.com/clinical-risk-fusion/internal/config"
	"github.com/clinical-risk-fusion/internal/transcription"
)

// ServerName is the key the MCP server is registered under
const ServerName = "clinical-risk-fusion"

// mcpBinary is the name cmd/mcp-server is installed as
const mcpBinary = "clinical-risk-fusion-mcp"

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the MCP server.
type Options struct {
	BinaryPath  string // Path to the MCP server binary
	ConfigFile  string // Passed to the server with --config
	ConfigPath  string // Client config file, detected when empty
	Provider    string // Exported as STT_PROVIDER when set
	AutoConfirm bool   // Skip confirmation prompts
}

// Status summarises what the service would run with
type Status struct {
	ConfigFile       string
	Selected         string
	Providers        []transcription.Status
	CredentialSource map[string]string
	KnowledgeSource  string
	Conditions       []string
	KnowledgeError   error
	ImagingEndpoint  string
	ClientConfigPath string
	ClientConfigured bool
	Issues           []string
}

// GetClaudeDesktopConfigPath returns the path to Claude Desktop's config file.
func GetClaudeDesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		// Try XDG config first, then fallback
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "Claude")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClaudeDesktopConfig loads the existing Claude Desktop configuration.
func LoadClaudeDesktopConfig(configPath string) (*ClaudeDesktopConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &ClaudeDesktopConfig{
				MCPServers: make(map[string]MCPServerConfig),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ClaudeDesktopConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]MCPServerConfig)
	}

	return &cfg, nil
}

// SaveClaudeDesktopConfig saves the configuration to the Claude Desktop config file.
func SaveClaudeDesktopConfig(configPath string, cfg *ClaudeDesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigureClaudeDesktop adds or updates the server entry, leaving other
// servers untouched. API keys are never written to the client config; the
// server reads them from its own environment or .env.
func ConfigureClaudeDesktop(opts Options) (string, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		var err error
		if configPath, err = GetClaudeDesktopConfigPath(); err != nil {
			return "", err
		}
	}

	cfg, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		return "", err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		if binaryPath, err = findBinary(); err != nil {
			return "", fmt.Errorf("could not find server binary: %w", err)
		}
	}

	server := MCPServerConfig{Command: binaryPath}
	if opts.ConfigFile != "" {
		server.Args = []string{"--config", opts.ConfigFile}
	}
	if opts.Provider != "" {
		server.Env = map[string]string{"STT_PROVIDER": opts.Provider}
	}
	cfg.MCPServers[ServerName] = server

	if err := SaveClaudeDesktopConfig(configPath, cfg); err != nil {
		return "", err
	}
	return configPath, nil
}

// findBinary looks next to the running executable, then on PATH
func findBinary() (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), mcpBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(mcpBinary); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%s not found next to this executable or on PATH, pass --binary", mcpBinary)
}

// GetStatus inspects configuration, credentials, the knowledge base and
// the MCP client registration
func GetStatus(ctx context.Context, manager *config.Manager, logger *logrus.Logger, clientConfigPath string) *Status {
	cfg := manager.GetConfig()
	status := &Status{
		ConfigFile:       manager.ConfigFileUsed(),
		Selected:         strings.ToLower(strings.TrimSpace(cfg.Transcription.Provider)),
		Providers:        transcription.Statuses(cfg.Transcription),
		CredentialSource: make(map[string]string),
		KnowledgeSource:  cfg.Knowledge.Source,
		ImagingEndpoint:  cfg.Imaging.Endpoint,
		ClientConfigPath: clientConfigPath,
	}

	for _, p := range status.Providers {
		status.CredentialSource[p.Name] = manager.CredentialSource(p.Name)
		if p.Selected && !p.Configured {
			status.Issues = append(status.Issues, fmt.Sprintf("selected provider %s has no usable key, set %s", p.Name, p.EnvVar))
		}
	}

	kb, err := app.LoadKnowledge(ctx, cfg, logger)
	if err != nil {
		status.KnowledgeError = err
		status.Issues = append(status.Issues, fmt.Sprintf("knowledge base failed to load: %v", err))
	} else {
		status.Conditions = kb.Summary()
	}

	if cfg.Imaging.Endpoint == "" {
		status.Issues = append(status.Issues, "Warning: imaging.endpoint is not set, scans cannot be classified")
	}

	if status.ClientConfigPath == "" {
		status.ClientConfigPath, _ = GetClaudeDesktopConfigPath()
	}
	if status.ClientConfigPath != "" {
		if clientCfg, err := LoadClaudeDesktopConfig(status.ClientConfigPath); err == nil {
			_, status.ClientConfigured = clientCfg.MCPServers[ServerName]
		}
	}

	return status
}

// Validate reports whether the service can start, with every issue found.
// Issues prefixed "Warning:" do not make the configuration invalid.
func Validate(ctx context.Context, manager *config.Manager, logger *logrus.Logger) (bool, []string) {
	var issues []string
	if err := manager.Validate(); err != nil {
		issues = append(issues, err.Error())
	}

	status := GetStatus(ctx, manager, logger, "")
	issues = append(issues, status.Issues...)

	return allWarnings(issues), issues
}

func allWarnings(issues []string) bool {
	for _, issue := range issues {
		if !strings.HasPrefix(issue, "Warning:") {
			return false
		}
	}
	return true
}
