// File: envresolver/errors.go
package envresolver

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKeyName indicates a schema key that is not a valid identifier
	// (letters, digits, underscore, no leading digit). This is a programming
	// error and fails the whole resolution before any source is loaded.
	ErrInvalidKeyName = errors.New("invalid schema key name")

	// ErrInvalidSchema indicates a schema entry whose shape or shorthand
	// could not be normalized into a definition.
	ErrInvalidSchema = errors.New("invalid schema entry")

	// ErrUnknownType indicates a definition type for which no validator is
	// registered. Like a bad key name, this is fatal for the whole call.
	ErrUnknownType = errors.New("no validator registered for type")

	// ErrSourceLoad indicates a source failed to load under strict mode.
	ErrSourceLoad = errors.New("source load failed")

	// ErrNoData indicates a cached source has no data yet and the underlying
	// load failed, leaving nothing to serve.
	ErrNoData = errors.New("no cached data available")
)

// Issue describes a single per-key resolution failure.
type Issue struct {
	Key     string
	Message string
}

func (i Issue) String() string {
	return i.Key + ": " + i.Message
}

// ResolveError aggregates every per-key violation of one resolution call.
// Resolution is all-or-nothing: any violation converts the whole call into
// a single error listing all of them, one per line.
type ResolveError struct {
	Issues []Issue
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	lines := make([]string, 0, len(e.Issues)+1)
	lines = append(lines, fmt.Sprintf("resolution failed with %d issue(s):", len(e.Issues)))
	for _, issue := range e.Issues {
		lines = append(lines, "  "+issue.String())
	}
	return strings.Join(lines, "\n")
}

// IssueFor returns the issue recorded for a key, if any.
func (e *ResolveError) IssueFor(key string) (Issue, bool) {
	for _, issue := range e.Issues {
		if issue.Key == key {
			return issue, true
		}
	}
	return Issue{}, false
}
