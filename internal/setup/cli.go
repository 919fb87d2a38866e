package setup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/config"
	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/transcription"
)

// ErrInvalidConfig is returned by validate so the process exits non-zero
var ErrInvalidConfig = errors.New("configuration is invalid")

// CLI provides command-line interface for setup operations.
type CLI struct {
	manager *config.Manager
	logger  *logrus.Logger
	out     io.Writer
	reader  *bufio.Reader
}

// NewCLI creates a new setup CLI instance.
func NewCLI(manager *config.Manager, logger *logrus.Logger, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		manager: manager,
		logger:  logger,
		out:     out,
		reader:  bufio.NewReader(in),
	}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "claude-desktop":
		return c.setupClaudeDesktop(args[1:])
	case "status":
		return c.showStatus(ctx)
	case "validate":
		return c.validate(ctx)
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

func (c *CLI) showHelp() error {
	help := `
Clinical Risk Fusion Setup

Usage:
  server setup <command> [options]

Commands:
  status          Show provider credentials, knowledge base and MCP registration
  validate        Validate current configuration
  claude-desktop  Register the MCP server with Claude Desktop

Options for claude-desktop:
  --binary, -b    Path to the MCP server binary
  --config, -c    Config file the MCP server should load
  --provider, -p  Speech-to-text provider to export as STT_PROVIDER
  --client-config Claude Desktop config file, detected when omitted
  --auto, -y      Do not ask for confirmation

Examples:
  # Check which speech-to-text providers have keys
  server setup status

  # Validate configuration before deploying
  server setup validate

  # Register with Claude Desktop using Deepgram
  server setup claude-desktop --provider deepgram -y
`
	fmt.Fprintln(c.out, help)
	return nil
}

func (c *CLI) setupClaudeDesktop(args []string) error {
	var opts Options

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--binary", "-b":
			if i+1 < len(args) {
				opts.BinaryPath = args[i+1]
				i++
			}
		case "--config", "-c":
			if i+1 < len(args) {
				opts.ConfigFile = args[i+1]
				i++
			}
		case "--provider", "-p":
			if i+1 < len(args) {
				opts.Provider = strings.ToLower(args[i+1])
				i++
			}
		case "--client-config":
			if i+1 < len(args) {
				opts.ConfigPath = args[i+1]
				i++
			}
		case "--auto", "-y":
			opts.AutoConfirm = true
		}
	}

	var envVar string
	if opts.Provider != "" {
		var ok bool
		if envVar, ok = credentialEnv(opts.Provider); !ok {
			return fmt.Errorf("unknown provider %q", opts.Provider)
		}
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath, _ = GetClaudeDesktopConfigPath()
	}
	fmt.Fprintln(c.out, "Claude Desktop Configuration")
	fmt.Fprintln(c.out, "============================")
	fmt.Fprintf(c.out, "Config file: %s\n", configPath)
	if opts.BinaryPath != "" {
		fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	}
	if opts.Provider != "" {
		fmt.Fprintf(c.out, "Provider: %s (key read from %s)\n", opts.Provider, envVar)
	}
	fmt.Fprintln(c.out)

	if !opts.AutoConfirm {
		fmt.Fprint(c.out, "Proceed with configuration? [Y/n]: ")
		response, _ := c.reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			fmt.Fprintln(c.out, "Configuration cancelled.")
			return nil
		}
	}

	written, err := ConfigureClaudeDesktop(opts)
	if err != nil {
		return fmt.Errorf("failed to configure Claude Desktop: %w", err)
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "✓ Registered %s in %s\n", ServerName, written)
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Next steps:")
	fmt.Fprintln(c.out, "  1. Restart Claude Desktop to load the new configuration")
	fmt.Fprintln(c.out, "  2. Try: \"Extract symptoms from: I have had a fever and dry cough for three days\"")
	fmt.Fprintln(c.out)

	return nil
}

func (c *CLI) showStatus(ctx context.Context) error {
	status := GetStatus(ctx, c.manager, c.logger, "")

	fmt.Fprintln(c.out, "Clinical Risk Fusion Status")
	fmt.Fprintln(c.out, "===========================")
	fmt.Fprintln(c.out)

	fmt.Fprintln(c.out, "Configuration:")
	if status.ConfigFile != "" {
		fmt.Fprintf(c.out, "  File: %s\n", status.ConfigFile)
	} else {
		fmt.Fprintln(c.out, "  File: - defaults and environment only")
	}
	fmt.Fprintln(c.out)

	fmt.Fprintln(c.out, "Speech-to-text:")
	fmt.Fprintf(c.out, "  Selected: %s\n", status.Selected)
	for _, p := range status.Providers {
		marker := " "
		if p.Selected {
			marker = "*"
		}
		if p.Configured {
			fmt.Fprintf(c.out, "  %s %-9s ✓ key from %s\n", marker, p.Name, status.CredentialSource[p.Name])
		} else {
			fmt.Fprintf(c.out, "  %s %-9s ✗ set %s\n", marker, p.Name, p.EnvVar)
		}
	}
	fmt.Fprintln(c.out)

	fmt.Fprintln(c.out, "Knowledge base:")
	fmt.Fprintf(c.out, "  Source: %s\n", status.KnowledgeSource)
	if status.KnowledgeError != nil {
		fmt.Fprintln(c.out, "  Status: ✗ Failed to load")
	} else {
		for _, line := range status.Conditions {
			fmt.Fprintf(c.out, "  %s\n", line)
		}
	}
	fmt.Fprintln(c.out)

	fmt.Fprintln(c.out, "Imaging:")
	if status.ImagingEndpoint != "" {
		fmt.Fprintf(c.out, "  Endpoint: %s\n", status.ImagingEndpoint)
	} else {
		fmt.Fprintln(c.out, "  Endpoint: ✗ Not configured")
	}
	fmt.Fprintln(c.out)

	fmt.Fprintln(c.out, "Claude Desktop:")
	fmt.Fprintf(c.out, "  Config path: %s\n", status.ClientConfigPath)
	if status.ClientConfigured {
		fmt.Fprintln(c.out, "  Status: ✓ Configured")
	} else {
		fmt.Fprintln(c.out, "  Status: ✗ Not configured")
	}
	fmt.Fprintln(c.out)

	if len(status.Issues) > 0 {
		fmt.Fprintln(c.out, "Issues:")
		for _, issue := range status.Issues {
			fmt.Fprintf(c.out, "  ⚠ %s\n", issue)
		}
		fmt.Fprintln(c.out)
	}

	return nil
}

func (c *CLI) validate(ctx context.Context) error {
	fmt.Fprintln(c.out, "Validating configuration...")
	fmt.Fprintln(c.out)

	valid, issues := Validate(ctx, c.manager, c.logger)

	if valid {
		fmt.Fprintln(c.out, "✓ Configuration is valid!")
		for _, issue := range issues {
			fmt.Fprintf(c.out, "  - %s\n", issue)
		}
		return nil
	}

	fmt.Fprintln(c.out, "✗ Configuration has issues:")
	for _, issue := range issues {
		fmt.Fprintf(c.out, "  - %s\n", issue)
	}
	return ErrInvalidConfig
}

// credentialEnv names the variable a provider reads its key from
func credentialEnv(provider string) (string, bool) {
	for _, status := range transcription.Statuses(domain.TranscriptionConfig{}) {
		if status.Name == provider {
			return status.EnvVar, true
		}
	}
	return "", false
}
