package newer

import (
	"time"

	"github.com/franksops/gonewer/provider"
)

// Source is one candidate input file flowing through a Filter.
// The filter reads Info.ModTime and Relative and never modifies a Source.
type Source struct {
	// Path is the absolute (or provider-rooted) location of the file.
	Path string

	// Relative is the path below the source root. It drives directory and
	// extension mapping of the destination.
	Relative string

	// Info is the source's metadata. A nil Info or a zero ModTime is
	// reported as ErrMissingMetadata.
	Info provider.FileInfo

	// Payload is carried through untouched.
	Payload any
}

// ModTime returns the source modification time, or the zero time when the
// source has no metadata.
func (s *Source) ModTime() time.Time {
	if s == nil || s.Info == nil {
		return time.Time{}
	}
	return s.Info.ModTime()
}

func (s *Source) name() string {
	if s == nil {
		return "<nil>"
	}
	if s.Path != "" {
		return s.Path
	}
	return s.Relative
}

func (s *Source) check() error {
	if s.ModTime().IsZero() {
		return &FileError{Op: "check", Path: s.name(), Err: ErrMissingMetadata}
	}
	return nil
}

// newerThan reports whether s is strictly newer than t. Equal timestamps
// are not newer.
func (s *Source) newerThan(t time.Time) bool {
	return s.ModTime().After(t)
}
