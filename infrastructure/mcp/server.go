package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	mcpserver "github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/agent-registry/application"
	"github.com/felixgeelhaar/agent-registry/infrastructure/logging"
)

// DefaultInstructions describe the tool set to clients.
const DefaultInstructions = "Agent registry: register agents, discover them by status, " +
	"capability, domain or text, and fetch their facts documents."

// ServerConfig configures a registry MCP server.
type ServerConfig struct {
	// Name is the server name.
	Name string

	// Version is the server version.
	Version string

	// Registry serves the tool calls. Required.
	Registry application.Registry

	// Instructions provides usage instructions for clients.
	Instructions string
}

// Server exposes the registry operations as MCP tools.
type Server struct {
	srv   *mcpgo.Server
	tools []Tool
}

// NewServer creates an MCP server with every registry tool registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Name == "" {
		cfg.Name = "agent-registry"
	}
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}

	info := mcpgo.ServerInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: "Agent registry and discovery service",
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}

	s := &Server{
		srv:   mcpgo.NewServer(info, mcpgo.WithInstructions(cfg.Instructions)),
		tools: Tools(cfg.Registry),
	}
	for _, t := range s.tools {
		s.srv.Tool(t.Name).
			Description(t.Description).
			Handler(s.handler(t))
	}
	return s, nil
}

func (s *Server) handler(t Tool) func(ctx context.Context, input json.RawMessage) (string, error) {
	return func(ctx context.Context, input json.RawMessage) (string, error) {
		start := time.Now()
		out := t.Call(ctx, input)
		logging.Debug().
			Add(logging.Component("mcp")).
			Add(logging.Operation(t.Name)).
			Add(logging.Duration(time.Since(start))).
			Msg("tool called")
		return out, nil
	}
}

// Tools returns the registered tools.
func (s *Server) Tools() []Tool {
	return s.tools
}

// Server returns the underlying mcp-go server.
func (s *Server) Server() *mcpgo.Server {
	return s.srv
}

// Use adds middleware to the server.
func (s *Server) Use(middlewares ...mcpserver.Middleware) {
	s.srv.Use(middlewares...)
}

// ServeStdio runs the server over stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context, opts ...ServeOption) error {
	return mcpgo.ServeStdio(ctx, s.srv, opts...)
}

// ServeHTTP runs the server over HTTP.
func (s *Server) ServeHTTP(ctx context.Context, addr string, opts ...HTTPOption) error {
	return mcpgo.ServeHTTP(ctx, s.srv, addr, opts...)
}
