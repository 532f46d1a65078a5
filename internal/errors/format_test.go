package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintPathAndCode(t *testing.T) {
	// Given: an error with path and suggestion
	err := Critical(KindRootInaccessible, "/no/such/dir", "root does not exist", nil).
		WithSuggestion("Check the path argument")

	// When: formatting for CLI
	result := FormatForCLI(err)

	// Then: all parts are present
	assert.Contains(t, result, "Error: root does not exist")
	assert.Contains(t, result, "Path: /no/such/dir")
	assert.Contains(t, result, "Hint: Check the path argument")
	assert.Contains(t, result, "Code: ERR_201_PATH_NOT_FOUND")
}

func TestFormatForCLI_StandardError(t *testing.T) {
	result := FormatForCLI(errors.New("something went wrong"))

	assert.Contains(t, result, "something went wrong")
	assert.Contains(t, result, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatForLog_StructuredFields(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := New(ErrCodeCacheCorrupt, "cannot decode record", cause).WithDetail("key", "abc123")

	fields := FormatForLog(err)

	require.NotNil(t, fields)
	assert.Equal(t, ErrCodeCacheCorrupt, fields["error_code"])
	assert.Equal(t, "CACHE", fields["category"])
	assert.Equal(t, "unexpected EOF", fields["cause"])
	assert.Equal(t, "abc123", fields["detail_key"])
}

func TestFormatRecord(t *testing.T) {
	r := Record{Severity: SeverityWarning, Kind: KindDirUnreadable, Path: "private", Message: "permission denied"}

	assert.Equal(t, "[WARNING] dir_unreadable: private - permission denied", FormatRecord(r))
}
