// Package mcp exposes a memory graph as Model Context Protocol tools, so MCP
// clients such as coding agents can remember, recall and relate memories.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/JNZader/memgraph/internal/config"
	"github.com/JNZader/memgraph/internal/embedding"
	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/logger"
	"github.com/JNZader/memgraph/internal/maintenance"
	"github.com/JNZader/memgraph/internal/metrics"
)

// Deps holds what the server needs. Journal and Store are optional; when
// set, the cleanup tool records its runs and saves the graph.
type Deps struct {
	Graph    *graph.Graph
	Embedder *embedding.Embedder
	Config   *config.Config
	Journal  maintenance.Recorder
	Store    maintenance.Saver
	Logger   *logger.Logger
	Metrics  *metrics.Collector
	Version  string
}

// Server is an MCP server backed by a memory graph.
type Server struct {
	graph    *graph.Graph
	embedder *embedding.Embedder
	cfg      *config.Config
	journal  maintenance.Recorder
	store    maintenance.Saver
	log      *logger.Logger
	metrics  *metrics.Collector

	server *sdk.Server
}

// New creates a Server with every memgraph tool registered.
func New(d Deps) *Server {
	s := &Server{
		graph:    d.Graph,
		embedder: d.Embedder,
		cfg:      d.Config,
		journal:  d.Journal,
		store:    d.Store,
		log:      d.Logger,
		metrics:  d.Metrics,
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.embedder == nil {
		s.embedder = embedding.New(s.cfg.Embedding.Dimension, embedding.WithCache(s.cfg.Embedding.CacheSize))
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.WithPrefix("mcp")
	if s.metrics == nil {
		s.metrics = metrics.Global()
	}

	version := d.Version
	if version == "" {
		version = "dev"
	}
	s.server = sdk.NewServer(&sdk.Implementation{Name: "memgraph", Version: version}, nil)
	s.registerTools()
	return s
}

// Run serves MCP over stdin and stdout until the client disconnects or ctx
// is done.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("serving MCP on stdio")
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves a single session over t and returns without waiting for
// it to end.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// addTool registers a tool whose result is rendered as indented JSON text.
// Handler errors become tool errors the client can read, not protocol
// failures.
func addTool[In any](s *Server, tool *sdk.Tool, h func(context.Context, In) (any, error)) {
	sdk.AddTool(s.server, tool, func(ctx context.Context, _ *sdk.CallToolRequest, in In) (*sdk.CallToolResult, any, error) {
		s.metrics.Counter(metrics.MetricMCPToolCalls).Inc()

		out, err := h(ctx, in)
		if err != nil {
			s.metrics.Counter(metrics.MetricMCPToolErrors).Inc()
			s.log.Debug("%s: %v", tool.Name, err)
			return nil, nil, err
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: string(data)}},
		}, nil, nil
	})
}
