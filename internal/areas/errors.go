package areas

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigParse marks malformed area configuration content.
	ErrConfigParse = errors.New("area config parse error")
	// ErrUnknownAreaReference marks an area entry naming an area that is never defined.
	ErrUnknownAreaReference = errors.New("unknown area reference")
	// ErrRequestedAreaNotFound marks a user-requested area absent from the configuration.
	ErrRequestedAreaNotFound = errors.New("requested area not found")
)

// ParseError reports configuration content that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse area config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrConfigParse, e.Err}
}

// UnknownAreaError reports an area entry that never resolves to a defined area.
type UnknownAreaError struct {
	Path     string
	Area     string
	Referrer string
}

func (e *UnknownAreaError) Error() string {
	return fmt.Sprintf("area config %s: area %q references unknown area %q", e.Path, e.Referrer, e.Area)
}

func (e *UnknownAreaError) Unwrap() error {
	return ErrUnknownAreaReference
}
