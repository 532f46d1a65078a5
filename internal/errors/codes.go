// Package errors provides structured error handling for amanscan.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Filesystem errors
//   - 3XX: Cache errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//   - 6XX: Watch errors
package errors

import "fmt"

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryFS indicates filesystem access errors.
	CategoryFS Category = "FS"
	// CategoryCache indicates cache persistence errors.
	CategoryCache Category = "CACHE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryWatch indicates filesystem watch errors.
	CategoryWatch Category = "WATCH"
)

// Severity defines error severity levels, ordered from least to most severe.
type Severity string

const (
	// SeverityInfo indicates a benign anomaly such as a symlink cycle.
	SeverityInfo Severity = "INFO"
	// SeverityWarning indicates one entry or subtree was skipped.
	SeverityWarning Severity = "WARNING"
	// SeverityError indicates a structural problem recovered by fallback.
	SeverityError Severity = "ERROR"
	// SeverityCritical indicates the operation must abort.
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists all severities in ascending order.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

// Rank returns the ordinal of the severity, or -1 if unknown.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// ParseSeverity converts a case-sensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if sev.Rank() < 0 {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Kind identifies the failure that produced a record.
type Kind string

const (
	KindSymlinkCycle     Kind = "symlink_cycle"
	KindDirUnreadable    Kind = "dir_unreadable"
	KindStatFailed       Kind = "stat_failed"
	KindRootInaccessible Kind = "root_inaccessible"
	KindCacheCorrupt     Kind = "cache_corrupt"
	KindCacheRead        Kind = "cache_read"
	KindCacheWrite       Kind = "cache_write"
	KindInvalidRequest   Kind = "invalid_request"
	KindWatchOverflow    Kind = "watch_overflow"
	KindWatchFailure     Kind = "watch_failure"
	KindExternal         Kind = "external"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Filesystem errors (200-299)
	ErrCodePathNotFound     = "ERR_201_PATH_NOT_FOUND"
	ErrCodePermissionDenied = "ERR_202_PERMISSION_DENIED"
	ErrCodeIOFailure        = "ERR_203_IO_FAILURE"
	ErrCodeSymlinkCycle     = "ERR_204_SYMLINK_CYCLE"

	// Cache errors (300-399)
	ErrCodeCacheCorrupt = "ERR_301_CACHE_CORRUPT"
	ErrCodeCacheRead    = "ERR_302_CACHE_READ"
	ErrCodeCacheWrite   = "ERR_303_CACHE_WRITE"

	// Validation errors (400-499)
	ErrCodeInvalidRequest = "ERR_401_INVALID_REQUEST"
	ErrCodeInvalidPattern = "ERR_402_INVALID_PATTERN"
	ErrCodeInvalidPath    = "ERR_403_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
	ErrCodeExternal = "ERR_502_EXTERNAL"

	// Watch errors (600-699)
	ErrCodeWatchUnavailable = "ERR_601_WATCH_UNAVAILABLE"
	ErrCodeWatchOverflow    = "ERR_602_WATCH_OVERFLOW"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryFS
	case '3':
		return CategoryCache
	case '4':
		return CategoryValidation
	case '6':
		return CategoryWatch
	default:
		return CategoryInternal
	}
}

// severityFromCode determines the default severity of an error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeSymlinkCycle:
		return SeverityInfo
	case ErrCodePermissionDenied, ErrCodeIOFailure, ErrCodeWatchOverflow:
		return SeverityWarning
	case ErrCodeInvalidRequest, ErrCodeInvalidPattern, ErrCodeInvalidPath:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// codeFromKind maps a failure kind to its error code.
func codeFromKind(kind Kind) string {
	switch kind {
	case KindSymlinkCycle:
		return ErrCodeSymlinkCycle
	case KindDirUnreadable:
		return ErrCodePermissionDenied
	case KindStatFailed:
		return ErrCodeIOFailure
	case KindRootInaccessible:
		return ErrCodePathNotFound
	case KindCacheCorrupt:
		return ErrCodeCacheCorrupt
	case KindCacheRead:
		return ErrCodeCacheRead
	case KindCacheWrite:
		return ErrCodeCacheWrite
	case KindInvalidRequest:
		return ErrCodeInvalidRequest
	case KindWatchOverflow:
		return ErrCodeWatchOverflow
	case KindWatchFailure:
		return ErrCodeWatchUnavailable
	case KindExternal:
		return ErrCodeExternal
	default:
		return ErrCodeInternal
	}
}
