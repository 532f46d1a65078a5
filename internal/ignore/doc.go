// Package ignore compiles glob-style ignore patterns into an immutable matcher.
//
// Pattern syntax:
//   - Wildcards (*, ?, **) and character classes ([abc], [a-z])
//   - Bare names match at any depth (node_modules, *.log)
//   - Patterns with a slash are anchored to the root (/build, docs/tmp)
//   - Trailing slash restricts to directories (cache/)
//   - Leading ! negates an earlier match (!keep.log)
//
// Matching is done on whole path segments, never on substrings: "mod" does not
// match "node_modules".
//
// Usage:
//
//	m, err := ignore.Compile([]string{"*.log", "!keep.log"}, true)
//	if err != nil {
//	    return err
//	}
//	if m.Match("logs/error.log", false) {
//	    // skip
//	}
package ignore
