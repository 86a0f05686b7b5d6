package lootjson

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks input that is not a well-formed loot table document.
	ErrMalformed = errors.New("malformed loot table json")
	// ErrMissingSource marks an empty or absent source text.
	ErrMissingSource = errors.New("missing source text")
)

// ParseError is the typed failure returned by Parse. It never escapes as a panic.
type ParseError struct {
	ID     string
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	where := e.ID
	if e.Path != "" {
		where += " at " + e.Path
	}
	if where == "" {
		return "parse: " + e.Reason
	}
	return fmt.Sprintf("parse %s: %s", where, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

func malformed(id, path, format string, args ...any) *ParseError {
	return &ParseError{ID: id, Path: path, Reason: fmt.Sprintf(format, args...), Err: ErrMalformed}
}
