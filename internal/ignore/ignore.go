package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// FileName is the per-project ignore file read from the scan root.
const FileName = ".amanscanignore"

// defaultPatterns covers version control, dependency and build output, editor
// state, OS metadata and caches.
var defaultPatterns = []string{
	// Version control
	".git", ".svn", ".hg", ".bzr",

	// Dependencies and package manager noise
	"node_modules", "npm-debug.log", "yarn-error.log", "yarn.lock", "package-lock.json",
	"vendor/",

	// Python
	"__pycache__", "*.pyc", "*.pyo", "*.pyd", ".Python", "*.so",
	".pytest_cache", ".coverage", "htmlcov", ".tox", ".venv", "venv",
	"*.egg-info",

	// Build output
	"build/", "dist/", "target/",

	// Editors
	".vscode", ".idea", "*.swp", "*.swo", "*~",

	// OS metadata
	".DS_Store", "Thumbs.db", "ehthumbs.db", "._*", ".Spotlight-V100", ".Trashes",

	// Logs, temp and caches
	"*.log", "*.tmp", "*.temp", "tmp/", "temp/", "*.cache", ".amanscan/",
}

// DefaultPatterns returns a copy of the built-in pattern set.
func DefaultPatterns() []string {
	return slices.Clone(defaultPatterns)
}

// Matcher holds compiled patterns. It is immutable after Compile and safe for
// concurrent use.
type Matcher struct {
	rules    []rule
	patterns []string
}

// rule represents a single compiled pattern.
type rule struct {
	pattern  string
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
	anchored bool
}

// Compile builds a matcher from patterns, optionally prefixed by the default set.
// Defaults come first so user patterns, including negations, take precedence.
func Compile(patterns []string, includeDefaults bool) (*Matcher, error) {
	m := &Matcher{}

	var all []string
	if includeDefaults {
		all = append(all, defaultPatterns...)
	}
	all = append(all, patterns...)

	for _, p := range all {
		r, ok, err := parseRule(p)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		m.rules = append(m.rules, r)
		m.patterns = append(m.patterns, r.pattern)
	}

	return m, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level defaults.
func MustCompile(patterns []string, includeDefaults bool) *Matcher {
	m, err := Compile(patterns, includeDefaults)
	if err != nil {
		panic(err)
	}
	return m
}

// Patterns returns the effective patterns in evaluation order.
func (m *Matcher) Patterns() []string {
	return slices.Clone(m.patterns)
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// parseRule compiles one pattern line. ok is false for blank lines and comments.
func parseRule(pattern string) (rule, bool, error) {
	hasEscapedTrailingSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)

	if pattern == "" || (strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`)) {
		return rule{}, false, nil
	}

	r := rule{pattern: pattern}

	if strings.HasPrefix(pattern, `\#`) || strings.HasPrefix(pattern, `\!`) {
		pattern = strings.TrimPrefix(pattern, `\`)
	} else if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = strings.TrimPrefix(pattern, "!")
	}

	if hasEscapedTrailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}

	// "docs/tmp" means "/docs/tmp", not "**/docs/tmp"
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	if pattern == "" {
		return rule{}, false, nil
	}

	regex, err := regexp.Compile("^" + patternToRegex(pattern) + "$")
	if err != nil {
		return rule{}, false, fmt.Errorf("invalid ignore pattern %q: %w", r.pattern, err)
	}
	r.regex = regex

	return r, true, nil
}

// Match reports whether path, relative to the scan root, is ignored.
// The last matching rule wins, so a later negation re-includes a path.
func (m *Matcher) Match(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	path = strings.Trim(filepath.ToSlash(path), "/")
	if path == "" || path == "." {
		return false
	}

	ignored := false
	for _, r := range m.rules {
		if matchRule(path, isDir, r) {
			ignored = !r.negation
		}
	}

	return ignored
}

// matchRule checks a path against one rule. A directory-only rule also matches
// files beneath a matching directory.
func matchRule(path string, isDir bool, r rule) bool {
	parts := strings.Split(path, "/")

	if r.anchored {
		if r.regex.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		for i := range parts[:len(parts)-1] {
			if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
				return true
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(path) {
		return true
	}

	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}

	return false
}

// patternToRegex converts a glob pattern to a regex string.
func patternToRegex(pattern string) string {
	var result strings.Builder

	i := 0
	for i < len(pattern) {
		c := pattern[i]

		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					result.WriteString("(?:.*/)?")
					i += 3
					continue
				} else if i == 0 || pattern[i-1] == '/' {
					result.WriteString(".*")
					i += 2
					continue
				}
			}
			result.WriteString("[^/]*")
			i++

		case '?':
			result.WriteString("[^/]")
			i++

		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				class := pattern[i+1 : j]
				if strings.HasPrefix(class, "!") {
					class = "^" + class[1:]
				}
				result.WriteString("[" + class + "]")
				i = j + 1
			} else {
				result.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '\\':
			if i+1 < len(pattern) {
				result.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				result.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '.', '+', '^', '$', '(', ')', '{', '}', '|', ']':
			result.WriteString(regexp.QuoteMeta(string(c)))
			i++

		default:
			result.WriteByte(c)
			i++
		}
	}

	return result.String()
}

// ParsePatterns extracts patterns from ignore-file content.
// Returns non-empty, non-comment lines.
func ParsePatterns(content string) []string {
	var patterns []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`) {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// ReadFile reads patterns from an ignore file. A missing file yields no patterns
// and no error.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, ParsePatterns(scanner.Text())...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}

	return patterns, nil
}

// Normalize returns patterns trimmed, without blanks or comments, and
// de-duplicated. Used to build cache keys. Without negations the result is
// sorted, so equal pattern sets give equal keys. Once a negation is present
// order decides the outcome, so order is kept and only the last occurrence of
// a duplicate survives.
func Normalize(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, ParsePatterns(p)...)
	}

	negated := slices.ContainsFunc(out, func(p string) bool { return strings.HasPrefix(p, "!") })
	if !negated {
		slices.Sort(out)
		return slices.Compact(out)
	}

	last := make(map[string]int, len(out))
	for i, p := range out {
		last[p] = i
	}
	kept := out[:0]
	for i, p := range out {
		if last[p] == i {
			kept = append(kept, p)
		}
	}
	return kept
}
