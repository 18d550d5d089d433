package ipc

import (
	"errors"
	"fmt"

	"github.com/agnivade/levenshtein"
)

// Sentinel errors for the binding layer.
var (
	// ErrUnknownKey is returned when a command name or event key is not part of the catalog.
	ErrUnknownKey = errors.New("unknown key")

	// ErrShapeMismatch is returned when a value does not match its declared shape.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrPayloadRequired is returned when a payload is omitted for a non-nullable event.
	ErrPayloadRequired = errors.New("payload required")

	// ErrNilWindow is returned when scoped operations are used without a window.
	ErrNilWindow = errors.New("window handle is nil")
)

// Key kinds reported by UnknownKeyError.
const (
	KindCommand = "command"
	KindEvent   = "event"
)

// UnknownKeyError reports a lookup of a key absent from the catalog.
type UnknownKeyError struct {
	// Kind is KindCommand or KindEvent.
	Kind string

	// Key is the name that was requested.
	Key string

	// Suggestion is the closest known key, if any is close enough.
	Suggestion string
}

// Error implements the error interface.
func (e *UnknownKeyError) Error() string {
	msg := fmt.Sprintf("unknown %s %q", e.Kind, e.Key)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// Is allows errors.Is to match UnknownKeyError with ErrUnknownKey.
func (e *UnknownKeyError) Is(target error) bool {
	return target == ErrUnknownKey
}

// ShapeError wraps a decoding failure for a named command or event.
type ShapeError struct {
	// Name is the command or wire event name.
	Name string

	// Err is the underlying decoding error.
	Err error
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Name, ErrShapeMismatch, e.Err)
}

// Unwrap returns the underlying error.
func (e *ShapeError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match ShapeError with ErrShapeMismatch.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// unknownKey builds an UnknownKeyError with the nearest candidate as suggestion.
func unknownKey(kind, key string, candidates []string) *UnknownKeyError {
	return &UnknownKeyError{Kind: kind, Key: key, Suggestion: closest(key, candidates)}
}

// closest returns the candidate with the smallest edit distance to key,
// provided the distance is at most a third of the key length (minimum 2).
func closest(key string, candidates []string) string {
	limit := len(key) / 3
	if limit < 2 {
		limit = 2
	}

	best, bestDist := "", limit+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(key, c)
		if d < bestDist || (d == bestDist && c < best) {
			best, bestDist = c, d
		}
	}
	return best
}
