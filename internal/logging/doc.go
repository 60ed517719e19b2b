// Package logging configures structured slog output for otto.
//
// Logs are JSON lines written to a size-rotated file under ~/.otto/logs/
// and, outside MCP stdio mode, mirrored to stderr.
package logging
