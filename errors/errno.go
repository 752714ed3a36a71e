// Package errors defines the sentinel error values segfs's core returns
// (segment I/O failure, directory exhaustion, path walk failures, and so
// on — the error kinds enumerated in the core's design) and the small
// wrapper that lets a caller attach call-site context to one of those
// sentinels without losing the ability to compare the result back against
// it.
package errors

import "fmt"

// DriverError is the interface satisfied by every error segfs's core
// returns. A bare sentinel compares equal to its constant, and a
// WithMessage result unwraps down to the sentinel it was built from. A
// WrapError result unwraps to the wrapped error instead, so the sentinel is
// then present only in its message text.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
}

// FSError is a sentinel error value, one per error kind segfs's core can
// report. It's a named string rather than a struct: two FSErrors of the
// same kind compare equal with ==, and a bare FSError can be used as a map
// key or switch case without any wrapping.
type FSError string

const ErrSegmentIO = FSError("segment I/O failed")
const ErrFileSystemCorrupted = FSError("structure needs cleaning")
const ErrDirectoryFull = FSError("directory has no room for another entry")
const ErrExists = FSError("file already exists")
const ErrNotFound = FSError("no such file or directory")
const ErrNotADirectory = FSError("not a directory")
const ErrIsADirectory = FSError("is a directory")
const ErrInvalidArgument = FSError("invalid argument")
const ErrInvalidPath = FSError("invalid path")
const ErrNoSpace = FSError("no space left in address space")
const ErrNotImplemented = FSError("function not implemented")

func (e FSError) Error() string {
	return string(e)
}

// WithMessage attaches call-site context to e, producing a new error whose
// message is e's followed by message, while still unwrapping back to e.
func (e FSError) WithMessage(message string) DriverError {
	return detailedError{message: fmt.Sprintf("%s: %s", e.Error(), message), cause: e}
}

// WrapError attaches an underlying error to e, producing a new error whose
// message chains e's text with err's, while still unwrapping back to err.
func (e FSError) WrapError(err error) DriverError {
	return detailedError{message: fmt.Sprintf("%s: %s", e.Error(), err.Error()), cause: err}
}

// detailedError is what WithMessage/WrapError return: a sentinel's message
// extended with call-site detail, remembering the error it was built from
// so Unwrap can recover it.
type detailedError struct {
	message string
	cause   error
}

func (e detailedError) Error() string {
	return e.message
}

func (e detailedError) WithMessage(message string) DriverError {
	return detailedError{message: fmt.Sprintf("%s: %s", e.message, message), cause: e}
}

func (e detailedError) WrapError(err error) DriverError {
	return detailedError{message: fmt.Sprintf("%s: %s", e.Error(), err.Error()), cause: err}
}

func (e detailedError) Unwrap() error {
	return e.cause
}
