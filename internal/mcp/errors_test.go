package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanscan/internal/discovery"
	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no scan", fmt.Errorf("update: %w", discovery.ErrNoScan), ErrCodeNoScan},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"tool not found", ErrToolNotFound, ErrCodeMethodNotFound},
		{"validation", scanerrors.ValidationError("bad request", nil), ErrCodeInvalidParams},
		{"root inaccessible", scanerrors.Critical(scanerrors.KindRootInaccessible, "/x", "root is missing", nil), ErrCodePathNotFound},
		{"other critical", scanerrors.Critical(scanerrors.KindCacheRead, "", "cannot read", nil), ErrCodeScanAborted},
		{"cache write", scanerrors.New(scanerrors.ErrCodeCacheWrite, "cannot write", nil), ErrCodeInternalError},
		{"unknown", fmt.Errorf("boom"), ErrCodeInternalError},
		{"already mapped", NewInvalidParamsError("x"), ErrCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)

			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesPathAndSuggestion(t *testing.T) {
	err := scanerrors.Critical(scanerrors.KindRootInaccessible, "/data", "root is missing", nil).
		WithSuggestion("Check the path.")

	got := MapError(err)

	assert.Equal(t, "root is missing: /data Check the path.", got.Message)
}

func TestMCPError_Error(t *testing.T) {
	err := NewMethodNotFoundError("search")

	assert.Equal(t, "MCP error -32601: Tool 'search' not found.", err.Error())
}
