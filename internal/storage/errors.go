package storage

import (
	"errors"
	"fmt"
)

// Kind classifies storage failures.
type Kind string

const (
	KindConflict    Kind = "conflict"
	KindRejected    Kind = "rejected"
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "unavailable"
)

// Sentinels for errors.Is matching against *Error.
var (
	ErrConflict    = errors.New("object already exists")
	ErrRejected    = errors.New("content type rejected")
	ErrNotFound    = errors.New("object not found")
	ErrUnavailable = errors.New("storage unavailable")
)

// Error is returned by every Gateway operation.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
