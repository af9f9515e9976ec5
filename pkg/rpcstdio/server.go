// Package rpcstdio exposes the defect tracker and publication workflow
// over the Model Context Protocol on stdio, so an agent can list and
// triage defects, and record a publication, without shelling out to
// the autofix CLI.
package rpcstdio

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autofix/internal/defect"
	"github.com/fyrsmithlabs/autofix/internal/pipeline"
)

// DefectStore is the subset of pkg/tracker.Client the stdio surface needs.
type DefectStore interface {
	FetchDefects(ctx context.Context) ([]*defect.Defect, error)
	GetDefect(ctx context.Context, id int) (*defect.Defect, error)
	CreateDefect(ctx context.Context, d *defect.Defect) (*defect.Defect, error)
	UpdateDefect(ctx context.Context, d *defect.Defect) (*defect.Defect, error)
}

// Server is an MCP server exposing defect and publication tools.
type Server struct {
	mcp      *mcpsdk.Server
	defects  DefectStore
	publish  pipeline.Publisher
	registry *ToolRegistry
	logger   *zap.Logger
}

// Config configures the stdio server.
type Config struct {
	// Name is the server implementation name (default: "autofix").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Name: "autofix", Version: "1.0.0", Logger: zap.NewNop()}
}

// NewServer builds a stdio MCP server backed by defects and publish.
func NewServer(cfg *Config, defects DefectStore, publish pipeline.Publisher) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if defects == nil {
		return nil, fmt.Errorf("defect store is required")
	}
	if publish == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	mcpServer := mcpsdk.NewServer(&mcpsdk.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)

	s := &Server{
		mcp:      mcpServer,
		defects:  defects,
		publish:  publish,
		registry: NewToolRegistry(),
		logger:   cfg.Logger,
	}

	s.registerDefectTools()
	s.registerPublicationTools()

	return s, nil
}

// Registry exposes the tool catalog for interactive discovery.
func (s *Server) Registry() *ToolRegistry {
	return s.registry
}

// Run starts the server on the stdio transport and blocks until ctx is
// cancelled or the transport closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting stdio MCP server")
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("stdio server run failed: %w", err)
	}
	return nil
}

func (s *Server) mustRegister(meta *ToolMetadata) {
	if err := s.registry.Register(meta); err != nil {
		s.logger.Warn("tool registration skipped", zap.String("tool", meta.Name), zap.Error(err))
	}
}
