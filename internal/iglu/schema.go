// Package iglu implements matching of self-describing schema URIs against
// operator-configured skip patterns.
package iglu

import "strings"

// Criterion is a single skipSchemas pattern: an Iglu URI with the
// major-minor-patch segment optionally wildcarded per-component with "*".
type Criterion struct {
	vendor, name, format          string
	major, minor, patch           string
}

// ParseCriterion parses a pattern of the form
// "iglu:vendor/name/format/major-minor-patch", where any path segment or
// version component may be "*".
func ParseCriterion(pattern string) (Criterion, bool) {
	pattern = strings.TrimPrefix(pattern, "iglu:")
	parts := strings.SplitN(pattern, "/", 4)
	if len(parts) != 4 {
		return Criterion{}, false
	}
	version := strings.SplitN(parts[3], "-", 3)
	if len(version) != 3 {
		return Criterion{}, false
	}
	return Criterion{
		vendor: parts[0], name: parts[1], format: parts[2],
		major: version[0], minor: version[1], patch: version[2],
	}, true
}

func componentMatches(pattern, actual string) bool {
	return pattern == "*" || pattern == actual
}

// Matches reports whether a fully-qualified schema URI satisfies c.
func (c Criterion) Matches(uri string) bool {
	other, ok := ParseCriterion(uri)
	if !ok {
		return false
	}
	return componentMatches(c.vendor, other.vendor) &&
		componentMatches(c.name, other.name) &&
		componentMatches(c.format, other.format) &&
		componentMatches(c.major, other.major) &&
		componentMatches(c.minor, other.minor) &&
		componentMatches(c.patch, other.patch)
}

// SkipList matches a schema URI against a configured set of skip patterns.
type SkipList struct {
	criteria []Criterion
}

// NewSkipList parses every pattern, silently dropping any that fail to
// parse.
func NewSkipList(patterns []string) SkipList {
	sl := SkipList{}
	for _, p := range patterns {
		if c, ok := ParseCriterion(p); ok {
			sl.criteria = append(sl.criteria, c)
		}
	}
	return sl
}

// Matches implements transform.SkipSchemaMatcher.
func (sl SkipList) Matches(uri string) bool {
	for _, c := range sl.criteria {
		if c.Matches(uri) {
			return true
		}
	}
	return false
}
