// Package mcp exposes the search pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
)

// Custom MCP error codes.
const (
	// ErrCodeRetrievalFailed indicates every retrieval source failed.
	ErrCodeRetrievalFailed = -32001

	// ErrCodeStoreUnavailable indicates a local store could not be read.
	ErrCodeStoreUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// ErrStatsUnavailable is returned by pipeline_stats when metrics are off.
var ErrStatsUnavailable = errors.New("pipeline metrics are disabled")

// MCPError is a tool error with a protocol code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts pipeline errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, retrieval.ErrRetrieval):
		return &MCPError{
			Code:    ErrCodeRetrievalFailed,
			Message: "All retrieval sources failed. Check the data directory with 'otto doctor'.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrStatsUnavailable):
		return &MCPError{Code: ErrCodeInternalError, Message: "Pipeline metrics are disabled."}
	}

	var oe *oerrors.OttoError
	if errors.As(err, &oe) {
		return mapOttoError(oe)
	}
	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
}

// NewInvalidParamsError creates an invalid-params error with msg.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapOttoError(oe *oerrors.OttoError) *MCPError {
	message := oe.Message
	if oe.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", oe.Message, oe.Suggestion)
	}

	switch oe.Category {
	case oerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case oerrors.CategoryStorage:
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: message}
	case oerrors.CategoryCollaborator:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
