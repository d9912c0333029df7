package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/yoki/data-agency/internal/dataset"
)

// ErrInfrastructure marks failures of the sandbox itself (missing docker
// binary, unreachable daemon, image not present). These are fatal to the
// current request and are never retried by regenerating code.
var ErrInfrastructure = errors.New("sandbox infrastructure failure")

// Executor runs one code snippet against isolated copies of the given
// datasets. A non-nil error is always an infrastructure problem; failures of
// the code itself are reported inside the ExecutionResult.
type Executor interface {
	Execute(ctx context.Context, code string, datasets map[string]*dataset.Dataset, attempt int, timeout time.Duration) (*ExecutionResult, error)
}

// ExecutionResult is the captured outcome of one sandboxed run.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// TimedOut is set when the run exceeded its wall-clock bound. The
	// container is torn down; the partial streams are kept.
	TimedOut bool
	// Err carries the structured runtime error when the code raised.
	Err       *CodeError
	Artifacts []Artifact
	Duration  time.Duration
}

// Success reports whether the code ran to completion without raising.
func (r *ExecutionResult) Success() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0 && r.Err == nil
}

// CodeError is a structured runtime error parsed from the interpreter's
// traceback output.
type CodeError struct {
	// Kind is the exception class, e.g. "KeyError" or "NameError".
	Kind string
	// Message is the exception text after the class name.
	Message string
	// Identifier is the offending name when one can be extracted from the
	// message (missing column, undefined variable). Used by the repeated-
	// failure heuristic.
	Identifier string
	// Traceback is the raw traceback block, bounded in size.
	Traceback string
}

func (e *CodeError) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Message
}

// Artifact references a file the code produced under the run's output
// directory, tagged with the attempt that produced it.
type Artifact struct {
	Name    string
	Path    string
	Attempt int
}
