package utils

import "fmt"

// ExportError is a structured export failure: the step that failed, the
// file or HDF5 object path it was working on, and the cause.
type ExportError struct {
	Op    string
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// WrapError creates a contextual error. It returns nil for a nil cause.
func WrapError(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &ExportError{
		Op:    op,
		Path:  path,
		Cause: cause,
	}
}
