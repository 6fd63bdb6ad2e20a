package newer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig matches every *ConfigError.
	ErrInvalidConfig = errors.New("invalid newer configuration")

	// ErrMissingMetadata is reported when a source carries no modification time.
	ErrMissingMetadata = errors.New("expected a source file with stats")

	// ErrEmptyMapping is reported when a MapFunc returns no path for a source.
	ErrEmptyMapping = errors.New("map produced no destination path")

	// ErrFilterUsed is returned when Run is called twice on one Filter.
	ErrFilterUsed = errors.New("filter already used; create a new Filter per run")
)

// ConfigError is a construction-time validation failure.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "newer: " + e.Reason
	}
	return fmt.Sprintf("newer: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// FileError is a fatal per-file failure. Op is "check" for a source without
// timing metadata, "map" when the mapper gave no path and "stat" for a
// failed destination lookup.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("newer: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// EmitError carries a failure returned by the downstream consumer while it
// handled an emitted source.
type EmitError struct {
	Path string
	Err  error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("newer: consumer failed on %s: %v", e.Path, e.Err)
}

func (e *EmitError) Unwrap() error {
	return e.Err
}
