// Package mcp exposes the risk fusion pipeline as Model Context Protocol
// tools, resources and prompts over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/knowledge"
	"github.com/clinical-risk-fusion/internal/service"
)

// Server wraps the MCP SDK server and the services its tools call
type Server struct {
	config    *domain.Config
	diagnosis *service.DiagnosisService
	kb        *knowledge.Base
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with every tool, resource and
// prompt registered
func NewServer(config *domain.Config, diagnosis *service.DiagnosisService, kb *knowledge.Base, logger *logrus.Logger) *Server {
	name := config.MCP.ServerName
	if name == "" {
		name = "clinical-risk-fusion"
	}
	version := config.MCP.ServerVersion
	if version == "" {
		version = "v1.0.0"
	}

	server := &Server{
		config:    config,
		diagnosis: diagnosis,
		kb:        kb,
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		logger:    logger,
	}

	server.registerTools()
	server.registerResources()
	server.registerPrompts()

	logger.WithFields(logrus.Fields{
		"server_name": name,
		"version":     version,
	}).Info("MCP server initialized")

	return server
}

// MCPServer returns the underlying SDK server
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Start serves over stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
