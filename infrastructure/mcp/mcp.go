// Package mcp exposes the registry operations as Model Context Protocol
// tools. It wraps github.com/felixgeelhaar/mcp-go.
package mcp

import (
	mcpgo "github.com/felixgeelhaar/mcp-go"
)

// Re-export core types from mcp-go for convenience.
type (
	// ServeOption configures stdio serving.
	ServeOption = mcpgo.ServeOption

	// HTTPOption configures HTTP transport.
	HTTPOption = mcpgo.HTTPOption
)

// Middleware constructors re-exported from mcp-go.
var (
	Recover   = mcpgo.Recover
	RequestID = mcpgo.RequestID
	Timeout   = mcpgo.Timeout
)
