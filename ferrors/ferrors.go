// Package ferrors defines the error taxonomy shared by every layer of the
// FAT32 engine: block I/O, geometry probing, the FAT engine, the directory
// engine, and the public handle-table API all return errors of this shape
// so callers can switch on a stable code instead of matching strings.
package ferrors

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Code is one of the error classes from the engine's error taxonomy. It is
// string-backed, the same trick the teacher uses for its own errno shim, so
// that the zero value prints as something sane instead of "0".
type Code string

const (
	// IOError indicates a block read/write failed, returned a short
	// transfer after retrying, or was interrupted beyond the retry budget.
	IOError = Code("I/O operation failed")
	// BadVolume indicates the BPB failed sanity checks, the volume is
	// FAT12/FAT16, or a cluster chain is corrupt (BAD cluster encountered
	// mid-chain, or a chain cycle).
	BadVolume = Code("volume is not a valid, supported FAT32 volume")
	// NotFound indicates a path segment did not resolve to a directory
	// entry.
	NotFound = Code("no such file or directory")
	// NotADirectory indicates an operation that requires a directory
	// found a file instead.
	NotADirectory = Code("not a directory")
	// Exists indicates Put found a duplicate name in the parent directory.
	Exists = Code("file exists")
	// InvalidName indicates a user-supplied name does not fit the 8.3
	// format or contains a forbidden character.
	InvalidName = Code("invalid 8.3 name")
	// TableFull indicates every slot in the handle table is in use.
	TableFull = Code("handle table is full")
	// VolumeFull indicates the allocator found no free cluster after
	// scanning the entire FAT once.
	VolumeFull = Code("no space left on volume")
	// OOM indicates an in-process allocation failed.
	OOM = Code("out of memory")
)

func (c Code) Error() string { return string(c) }

// WithMessage attaches additional detail to a Code, e.g. the path or
// cluster number involved.
func (c Code) WithMessage(message string) Error {
	return Error{Code: c, message: message}
}

// WithMessagef is the Printf-style equivalent of WithMessage.
func (c Code) WithMessagef(format string, args ...interface{}) Error {
	return Error{Code: c, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying error (typically from the block device) to a
// Code.
func (c Code) Wrap(err error) Error {
	return Error{Code: c, message: err.Error(), cause: err}
}

// Error is a taxonomy Code plus a human-readable message and, optionally,
// the underlying cause. It implements the standard `error` interface and
// supports errors.Is/errors.As against its Code via Unwrap.
type Error struct {
	Code    Code
	message string
	cause   error
}

func (e Error) Error() string {
	if e.message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.message)
}

// Unwrap lets errors.Is(err, ferrors.NotFound) work directly against a
// wrapped Error, and also exposes the underlying I/O cause, if any.
func (e Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.Code
}

// Is reports whether target is the same Code, independent of message.
func (e Error) Is(target error) bool {
	code, ok := target.(Code)
	return ok && code == e.Code
}

// New constructs a plain Error from a Code with no extra detail.
func New(code Code) Error {
	return Error{Code: code}
}

// MirrorFailure builds an IOError describing a write_fat call that failed
// on one or more, but not necessarily all, FAT copies. Per spec.md's
// concurrency model, such a failure leaves the FAT copies possibly
// divergent and must be surfaced as a hard error rather than retried
// transparently.
func MirrorFailure(cluster uint32, perCopyErrors *multierror.Error) Error {
	if perCopyErrors == nil || perCopyErrors.Len() == 0 {
		return New(IOError)
	}
	return IOError.WithMessagef(
		"writing FAT entry for cluster %d left copies divergent: %s",
		cluster, perCopyErrors.Error())
}
