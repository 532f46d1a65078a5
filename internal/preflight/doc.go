// Package preflight checks that a scan can run before it starts: the root is
// readable, the cache directory is writable with room to spare, and the
// process limits allow native file watching.
//
// Use the Checker type to run all checks:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{Root: root, CacheDir: dir})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
