// Package mcp exposes the discovery engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/amanscan/internal/discovery"
	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeNoScan indicates no completed scan covers the requested path.
	ErrCodeNoScan = -32001

	// ErrCodeScanAborted indicates a CRITICAL failure aborted the scan.
	ErrCodeScanAborted = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodePathNotFound indicates the root does not exist or is not a directory.
	ErrCodePathNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if se, ok := scanerrors.As(err); ok {
		return mapScanError(se)
	}

	switch {
	case errors.Is(err, discovery.ErrNoScan):
		return &MCPError{
			Code:    ErrCodeNoScan,
			Message: "No completed scan covers this path. Run the scan tool first.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapScanError(se *scanerrors.Error) *MCPError {
	message := se.Message
	if se.Path != "" {
		message = fmt.Sprintf("%s: %s", message, se.Path)
	}
	if se.Suggestion != "" {
		message = fmt.Sprintf("%s %s", message, se.Suggestion)
	}

	switch {
	case se.Category == scanerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case se.Kind == scanerrors.KindRootInaccessible:
		return &MCPError{Code: ErrCodePathNotFound, Message: message}
	case se.Severity == scanerrors.SeverityCritical:
		return &MCPError{Code: ErrCodeScanAborted, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
