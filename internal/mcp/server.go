package mcp

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/devmatch-mcp/internal/compat"
	"github.com/dshills/devmatch-mcp/internal/engine"
	"github.com/dshills/devmatch-mcp/internal/indexer"
	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/internal/matcher"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "devmatch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Engine is the matching surface the tools call. *engine.Engine implements it.
type Engine interface {
	GenerateEmbedding(ctx context.Context, text string, aspect types.Aspect, useCache bool) (*types.Embedding, error)
	GenerateDeveloperProfileEmbedding(ctx context.Context, dev *types.Developer) (*types.MultiAspectEmbedding, error)
	GenerateProjectRequirementEmbedding(ctx context.Context, project *types.Project) (*types.MultiAspectEmbedding, error)
	FindMatchingDevelopers(ctx context.Context, project *types.Project, limit int, includeAnalysis bool) (*matcher.Response, error)
	FindMatchingProjects(ctx context.Context, developer *types.Developer, limit int, includeAnalysis bool) (*matcher.Response, error)
	CalculateSkillCompatibility(ctx context.Context, developerID string, requiredSkills []string, weights *compat.Weights) (*types.CompatibilityBreakdown, error)
	FindOptimalTeam(ctx context.Context, requiredSkills []string, teamSizeLimit int, excludeIDs []string) (*types.TeamComposition, error)
	UpsertDeveloper(ctx context.Context, dev *types.Developer) (*engine.UpsertResult, error)
	UpsertProject(ctx context.Context, project *types.Project) (*engine.UpsertResult, error)
	DeleteDeveloper(ctx context.Context, id string) error
	DeleteProject(ctx context.Context, id string) error
	Status(ctx context.Context) (*engine.Status, error)
}

// Ingester loads datasets. *indexer.Indexer implements it.
type Ingester interface {
	Ingest(ctx context.Context, ds *indexer.Dataset, config *indexer.Config) (*indexer.Statistics, error)
	IngestFile(ctx context.Context, path string, config *indexer.Config) (*indexer.Statistics, error)
	Busy() bool
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	engine  Engine
	indexer Ingester
	logger  *zap.Logger
}

// NewServer creates a new MCP server over eng. idx may be nil, in which case
// ingest_dataset is not registered.
func NewServer(eng Engine, idx Ingester, log *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:     mcpServer,
		engine:  eng,
		indexer: idx,
		logger:  logger.OrNop(log).Named("mcp"),
	}
	s.registerTools()

	return s, nil
}

// Serve runs the MCP server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen runs the MCP server over the given streams
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	s.logger.Info("serving MCP over stdio", zap.String("version", ServerVersion))
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(generateEmbeddingTool(), s.handleGenerateEmbedding)
	s.mcp.AddTool(findMatchingDevelopersTool(), s.handleFindMatchingDevelopers)
	s.mcp.AddTool(findMatchingProjectsTool(), s.handleFindMatchingProjects)
	s.mcp.AddTool(calculateSkillCompatibilityTool(), s.handleCalculateSkillCompatibility)
	s.mcp.AddTool(findOptimalTeamTool(), s.handleFindOptimalTeam)
	s.mcp.AddTool(upsertDeveloperTool(), s.handleUpsertDeveloper)
	s.mcp.AddTool(upsertProjectTool(), s.handleUpsertProject)
	s.mcp.AddTool(deleteEntityTool(), s.handleDeleteEntity)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)

	if s.indexer != nil {
		s.mcp.AddTool(ingestDatasetTool(), s.handleIngestDataset)
	}
}
