// Package mcp provides an MCP (Model Context Protocol) server adapter for stitch.
// It gives AI assistants read-only access to session progress, chunk state and
// segment summaries.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")
