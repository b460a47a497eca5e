package chain

import (
	"strings"

	"github.com/tidwall/match"
)

// Predicate narrows a Rule to the subset of messages it should fire on. A
// nil Predicate always matches, exactly the way spec.md §3 describes a
// Rule's predicate as optional.
type Predicate func(value string) bool

// Glob builds a Predicate that matches the field's current value against a
// shell-style glob pattern ("*.example.com", "/api/*"), using the same
// matcher tidwall/match implements for SQL LIKE-style and Redis KEYS-style
// matching elsewhere in the ecosystem.
func Glob(pattern string) Predicate {
	return func(value string) bool {
		return match.Match(value, pattern)
	}
}

// Equals builds a Predicate that matches the field's current value exactly.
func Equals(want string) Predicate {
	return func(value string) bool { return value == want }
}

// Contains builds a Predicate that matches when the field's current value
// contains substr.
func Contains(substr string) Predicate {
	return func(value string) bool {
		return strings.Contains(value, substr)
	}
}
