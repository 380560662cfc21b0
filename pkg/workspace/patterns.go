// Package workspace provides glob matching and file enumeration over a
// user workspace.
package workspace

import (
	"path/filepath"
	"regexp"
	"strings"
)

// PatternMatcher handles glob pattern matching
type PatternMatcher struct {
	patterns []string
	regexps  []*regexp.Regexp
}

// NewPatternMatcher creates a new pattern matcher
func NewPatternMatcher(patterns []string) (*PatternMatcher, error) {
	pm := &PatternMatcher{
		patterns: patterns,
		regexps:  make([]*regexp.Regexp, 0, len(patterns)),
	}

	for _, pattern := range patterns {
		regex, err := globToRegex(NormalizePattern(pattern))
		if err != nil {
			return nil, err
		}
		pm.regexps = append(pm.regexps, regex)
	}

	return pm, nil
}

// Match checks if a path matches any pattern
func (pm *PatternMatcher) Match(path string) bool {
	path = filepath.ToSlash(path)

	for _, regex := range pm.regexps {
		if regex.MatchString(path) {
			return true
		}
	}

	return false
}

// MatchAny checks if any of the paths match any pattern
func (pm *PatternMatcher) MatchAny(paths []string) bool {
	for _, path := range paths {
		if pm.Match(path) {
			return true
		}
	}
	return false
}

// Patterns returns the configured pattern set.
func (pm *PatternMatcher) Patterns() []string {
	return pm.patterns
}

// NormalizePattern normalizes a file pattern
func NormalizePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	pattern = strings.TrimPrefix(pattern, "./")
	pattern = strings.TrimSuffix(pattern, "/")
	return pattern
}

// globToRegex converts a glob pattern to a regular expression.
// ** matches across directory separators, * and ? within a segment.
func globToRegex(pattern string) (*regexp.Regexp, error) {
	var regex strings.Builder
	regex.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch pattern[i] {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					regex.WriteString("(?:.*/)?")
					i += 3
				} else {
					regex.WriteString(".*")
					i += 2
				}
			} else {
				regex.WriteString("[^/]*")
				i++
			}
		case '?':
			regex.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				regex.WriteString("[^")
				j++
			} else {
				regex.WriteString("[")
			}
			for j < len(pattern) && pattern[j] != ']' {
				regex.WriteByte(pattern[j])
				j++
			}
			if j < len(pattern) {
				regex.WriteByte(']')
				i = j + 1
			} else {
				// Unclosed bracket, treat as literal
				regex.WriteString("\\[")
				i++
			}
		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			regex.WriteByte('\\')
			regex.WriteByte(pattern[i])
			i++
		default:
			regex.WriteByte(pattern[i])
			i++
		}
	}

	regex.WriteString("$")

	return regexp.Compile(regex.String())
}

// IsGlobPattern checks if a string contains glob wildcards
func IsGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// DefaultExcludePatterns returns exclusion patterns applied when a
// workspace document configures none.
func DefaultExcludePatterns() []string {
	return []string{
		"**/.git/**",
		"**/__pycache__/**",
		"**/*.pyc",
		"**/.venv/**",
		"**/venv/**",
		"**/node_modules/**",
		"**/build/**",
		"**/dist/**",
		"**/.mypy_cache/**",
		"**/.pytest_cache/**",
		"**/*.egg-info/**",
	}
}
