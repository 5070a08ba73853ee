package hashtable

import (
	"errors"
	"fmt"
)

// Status is the outcome of a hash table operation.
//
// Status values double as sentinel errors, so callers branch with
// errors.Is(err, hashtable.ErrNoSuchKey) and friends.
type Status int

const (
	StatusSuccess Status = iota
	StatusNoSuchKey
	StatusKeyExists
	StatusInvalidArgument
	StatusInsertAlloc
	StatusDeleteAllFailed
	StatusNotDeleted
)

// Sentinel errors for errors.Is.
var (
	ErrNoSuchKey       error = StatusNoSuchKey
	ErrKeyExists       error = StatusKeyExists
	ErrInvalidArgument error = StatusInvalidArgument
	ErrInsertAlloc     error = StatusInsertAlloc
	ErrDeleteAllFailed error = StatusDeleteAllFailed
	ErrNotDeleted      error = StatusNotDeleted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "HASHTABLE_SUCCESS"
	case StatusNoSuchKey:
		return "HASHTABLE_ERROR_NO_SUCH_KEY"
	case StatusKeyExists:
		return "HASHTABLE_ERROR_KEY_ALREADY_EXISTS"
	case StatusInvalidArgument:
		return "HASHTABLE_ERROR_INVALID_ARGUMENT"
	case StatusInsertAlloc:
		return "HASHTABLE_INSERT_MALLOC_ERROR"
	case StatusDeleteAllFailed:
		return "HASHTABLE_ERROR_DELALL_FAIL"
	case StatusNotDeleted:
		return "HASHTABLE_NOT_DELETED"
	default:
		return "UNKNOWN HASH TABLE ERROR"
	}
}

func (s Status) Error() string {
	return s.String()
}

// Error is returned by every failing table operation.
type Error struct {
	Status Status
	Table  string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("hashtable %s: %s", e.Table, e.Status)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the Status sentinel and the underlying cause, if any.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Status}
	}
	return []error{e.Status, e.Err}
}

// StatusOf extracts the Status carried by err. A nil error is StatusSuccess;
// an error that did not come from this package is StatusInvalidArgument.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var he *Error
	if errors.As(err, &he) {
		return he.Status
	}
	if s, ok := err.(Status); ok {
		return s
	}
	return StatusInvalidArgument
}
