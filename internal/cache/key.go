// Package cache persists scan listings and computes deltas between them.
//
// Each scan request maps to a deterministic Key. A Store keeps one JSON record
// per key in an injected directory; records are written atomically so a reader
// sees either the previous or the new record. Concurrent writers of the same
// key are last-writer-wins.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/Aman-CERP/amanscan/internal/ignore"
)

// Key addresses a cache record.
type Key string

// Params are the scan parameters that determine a listing.
type Params struct {
	Root            string   `json:"root"`
	Recursive       bool     `json:"recursive"`
	MaxDepth        int      `json:"max_depth"`
	Patterns        []string `json:"patterns"`
	IncludeDefaults bool     `json:"include_defaults"`
	FollowSymlinks  bool     `json:"follow_symlinks"`
}

// Normalized returns a copy with patterns trimmed, de-duplicated and sorted.
func (p Params) Normalized() Params {
	p.Patterns = ignore.Normalize(p.Patterns)
	return p
}

// Equal compares normalized parameters field by field.
func (p Params) Equal(o Params) bool {
	a, b := p.Normalized(), o.Normalized()
	return a.Root == b.Root &&
		a.Recursive == b.Recursive &&
		a.MaxDepth == b.MaxDepth &&
		a.IncludeDefaults == b.IncludeDefaults &&
		a.FollowSymlinks == b.FollowSymlinks &&
		slices.Equal(a.Patterns, b.Patterns)
}

// KeyFor derives the key for p. Equal parameter tuples always produce the same
// key, independent of pattern order.
func KeyFor(p Params) Key {
	n := p.Normalized()
	// Struct field order fixes the encoding; marshalling cannot fail for these types.
	data, _ := json.Marshal(n)
	sum := sha256.Sum256(data)
	return Key(hex.EncodeToString(sum[:]))
}
