package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheRecords(t *testing.T) []any {
	t.Helper()
	res := run(t, "cache", "info", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var out struct {
		Dir     string `json:"dir"`
		Records []any  `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.NotEmpty(t, out.Dir)
	return out.Records
}

func TestCacheInfo_ListsScans(t *testing.T) {
	isolate(t)
	assert.Empty(t, cacheRecords(t))

	scanJSON(t, writeTree(t, map[string]string{"a.go": "a"}))
	scanJSON(t, writeTree(t, map[string]string{"b.go": "b"}))

	assert.Len(t, cacheRecords(t), 2)
}

func TestCacheInfo_HumanOutput(t *testing.T) {
	isolate(t)

	res := run(t, "cache", "info")

	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "no records")
}

func TestCacheInvalidate_DropsMatchingRecord(t *testing.T) {
	isolate(t)
	root := writeTree(t, map[string]string{"a.go": "a"})
	scanJSON(t, root)
	scanJSON(t, root, "--max-depth", "1")
	require.Len(t, cacheRecords(t), 2)

	// When: invalidating the depth-limited request
	res := run(t, "cache", "invalidate", root, "--max-depth", "1")

	// Then: only that record is gone and the next such scan misses
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Invalidated")
	assert.Len(t, cacheRecords(t), 1)
	out := scanJSON(t, root, "--max-depth", "1")
	assert.Equal(t, false, out["cache_hit"])
}

func TestCacheClear_RemovesEverything(t *testing.T) {
	isolate(t)
	scanJSON(t, writeTree(t, map[string]string{"a.go": "a"}))

	res := run(t, "cache", "clear")

	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Removed 1 record(s)")
	assert.Empty(t, cacheRecords(t))
}

func TestCachePrune(t *testing.T) {
	isolate(t)
	scanJSON(t, writeTree(t, map[string]string{"a.go": "a"}))

	t.Run("fresh records are kept", func(t *testing.T) {
		res := run(t, "cache", "prune", "--max-age", "1h")

		require.Equal(t, ExitOK, res.code, res.stderr)
		assert.Contains(t, res.stdout, "Pruned 0 record(s)")
		assert.Len(t, cacheRecords(t), 1)
	})

	t.Run("non-positive age is rejected", func(t *testing.T) {
		res := run(t, "cache", "prune", "--max-age", "0s")

		assert.Equal(t, ExitUsage, res.code)
	})
}
