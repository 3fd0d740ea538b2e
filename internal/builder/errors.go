package builder

import (
	"errors"
	"fmt"
)

var (
	// ErrEnvironmentMissing means a required toolchain or POSIX layer could not be located
	ErrEnvironmentMissing = errors.New("build environment missing")
	// ErrPatchMismatch means a patch or substitution did not match the extracted sources
	ErrPatchMismatch = errors.New("patch does not match the sources")
	// ErrStageFailed is wrapped by every error returned from Run
	ErrStageFailed = errors.New("stage failed")

	errIllegalSource = errors.New("empty or illegal source string")
)

// StageError carries the stage that failed and its cause
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrStageFailed, e.Err}
}
