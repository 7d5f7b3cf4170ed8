package project

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors used for simple equality-style checks via errors.Is.
var (
	// ErrInvalid marks malformed user input: ambiguous sample grouping,
	// out-of-range parameters, unparseable trait rows, and so on.
	ErrInvalid = errors.New("invalid input")

	// ErrExists is returned when initializing a project whose manifest file
	// already exists and force was not requested.
	ErrExists = errors.New("project already exists")

	// ErrNotFound is returned when a manifest file is absent.
	ErrNotFound = errors.New("project not found")

	// ErrCorrupt is returned when a manifest file cannot be parsed, is
	// missing required fields, or carries an unknown schema version.
	ErrCorrupt = errors.New("project file corrupt")

	// ErrEmptyResult marks a stage that completed with nothing to show for
	// it. It is advisory: callers log it and continue.
	ErrEmptyResult = errors.New("empty result")
)

// PrerequisiteError reports a stage run before its dependency completed.
type PrerequisiteError struct {
	Stage Stage // the stage that was asked to run
	Needs Stage // the stage that has not completed
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("stage %q requires completed %q stage", e.Stage, e.Needs)
}

// IsPrerequisite reports whether err is (or wraps) a PrerequisiteError.
func IsPrerequisite(err error) bool {
	var pe *PrerequisiteError
	return errors.As(err, &pe)
}

// UnknownSampleError reports trait-table rows naming samples that do not
// exist in the project manifest. Names is sorted.
type UnknownSampleError struct {
	Names []string
}

func (e *UnknownSampleError) Error() string {
	names := append([]string(nil), e.Names...)
	sort.Strings(names)
	return fmt.Sprintf("unknown samples: %s", strings.Join(names, ", "))
}

func (e *UnknownSampleError) Unwrap() error { return ErrInvalid }

// EngineError aggregates per-sample counting engine failures. The count
// driver attempts every sample before returning it, so one bad sample does
// not block the rest.
type EngineError struct {
	Failures map[string]error // sample name -> failure
}

func (e *EngineError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return fmt.Sprintf("counting engine failed for %d sample(s): %s",
		len(names), strings.Join(parts, "; "))
}

// IsEngineError reports whether err is (or wraps) an EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// SelectorAmbiguousError reports an extract selector token that could
// validly resolve to more than one selector form.
type SelectorAmbiguousError struct {
	Token string
	Forms []string // e.g. {"group", "path"}
}

func (e *SelectorAmbiguousError) Error() string {
	return fmt.Sprintf("selector %q is ambiguous: resolves as %s",
		e.Token, strings.Join(e.Forms, " and "))
}

func (e *SelectorAmbiguousError) Unwrap() error { return ErrInvalid }
