package namespace

import (
	"errors"
	"fmt"
)

// Error represents an expected namespace outcome that callers branch on
// (missing entry, stale generation, conflicting entry, ...).
//
// Invariant violations are not reported through Error: they panic.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the "parent/name" or inode the error relates to, if any
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// Is makes errors.Is match any *Error carrying the same Code, so
// errors.Is(err, &Error{Code: ErrStale}) works without comparing messages.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ErrorCode represents the category of a namespace error.
type ErrorCode int

const (
	// ErrNotFound indicates the parent, the entry or the inode is not in the
	// namespace
	ErrNotFound ErrorCode = iota

	// ErrStale indicates the inode is present under a different generation
	// than the one presented by the caller
	ErrStale

	// ErrConflict indicates (parent, name) already resolves to a different
	// inode: the backend changed behind the cache
	ErrConflict

	// ErrLoop indicates path reconstruction found an entry that is its own
	// parent
	ErrLoop

	// ErrNameTooLong indicates an entry name exceeds the configured maximum
	ErrNameTooLong

	// ErrPathTooLong indicates a reconstructed path would not fit in the
	// configured maximum path length
	ErrPathTooLong

	// ErrInvalidArgument indicates a malformed name or an operation on an
	// uninitialized or closed namespace
	ErrInvalidArgument

	// ErrAlloc indicates an index refused a new entry; the namespace is left
	// unchanged
	ErrAlloc

	// ErrInternal indicates an unexpected failure of an underlying index
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrStale:
		return "stale"
	case ErrConflict:
		return "conflict"
	case ErrLoop:
		return "loop_detected"
	case ErrNameTooLong:
		return "name_too_long"
	case ErrPathTooLong:
		return "path_too_long"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrAlloc:
		return "alloc_error"
	case ErrInternal:
		return "internal"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// ParseErrorCode is the inverse of ErrorCode.String.
func ParseErrorCode(s string) (ErrorCode, bool) {
	for c := ErrNotFound; c <= ErrInternal; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// NFSv3 status codes (RFC 1813) the namespace errors translate to.
const (
	NFS3OK             = 0
	NFS3ErrNoEnt       = 2
	NFS3ErrIO          = 5
	NFS3ErrExist       = 17
	NFS3ErrInval       = 22
	NFS3ErrNoSpc       = 28
	NFS3ErrNameTooLong = 63
	NFS3ErrStale       = 70
	NFS3ErrServerFault = 10006
)

// NFSStatus maps the code to the NFSv3 status a protocol handler should
// return. NFSv3 has no ELOOP status; loops are reported as SERVERFAULT.
func (c ErrorCode) NFSStatus() uint32 {
	switch c {
	case ErrNotFound:
		return NFS3ErrNoEnt
	case ErrStale:
		return NFS3ErrStale
	case ErrConflict:
		return NFS3ErrExist
	case ErrNameTooLong, ErrPathTooLong:
		return NFS3ErrNameTooLong
	case ErrInvalidArgument:
		return NFS3ErrInval
	case ErrAlloc:
		return NFS3ErrNoSpc
	default:
		return NFS3ErrServerFault
	}
}

// NFSStatus returns the NFSv3 status for err: NFS3OK for nil, the mapped
// status for an *Error, NFS3ErrIO for anything else.
func NFSStatus(err error) uint32 {
	if err == nil {
		return NFS3OK
	}
	var nsErr *Error
	if errors.As(err, &nsErr) {
		return nsErr.Code.NFSStatus()
	}
	return NFS3ErrIO
}

// CodeOf returns the ErrorCode carried by err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var nsErr *Error
	if errors.As(err, &nsErr) {
		return nsErr.Code, true
	}
	return 0, false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsNotFound reports whether err is an ErrNotFound namespace error.
func IsNotFound(err error) bool { return hasCode(err, ErrNotFound) }

// IsStale reports whether err is an ErrStale namespace error.
func IsStale(err error) bool { return hasCode(err, ErrStale) }

// IsConflict reports whether err is an ErrConflict namespace error.
func IsConflict(err error) bool { return hasCode(err, ErrConflict) }

// IsLoop reports whether err is an ErrLoop namespace error.
func IsLoop(err error) bool { return hasCode(err, ErrLoop) }

func newError(code ErrorCode, path, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Path: path}
}
