package neemo

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document key is absent. It marks a valid
// outcome, not a failure.
var ErrNotFound = errors.New("not found")

// StorageError wraps an I/O failure of the underlying engine. It is fatal
// to the attempted operation, never to the process.
type StorageError struct {
	Store string // "data" or "index"
	Op    string
	Err   error
}

func storageErrf(store, op string, err error) error {
	return &StorageError{Store: store, Op: op, Err: err}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Store, e.Op, e.Err)
}

// CorruptionError means stored bytes failed to decode. Scans skip and
// report these; point reads fail with them.
type CorruptionError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func corruptErrf(data []byte, off int, err error, format string, args ...any) error {
	return &CorruptionError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

func (e *CorruptionError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// EncodingError means a value's shape cannot be indexed. It rejects the
// mutation before anything is written.
type EncodingError struct {
	Field string
	Value any
	Msg   string
}

func encodingErrf(field string, value any, format string, args ...any) error {
	return &EncodingError{Field: field, Value: value, Msg: fmt.Sprintf(format, args...)}
}

func (e *EncodingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field %q: %s", e.Field, e.Msg)
	}
	return e.Msg
}

// ValidationError means the caller supplied malformed arguments.
type ValidationError struct {
	Msg string
}

func validationErrf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// IsNotFound reports whether err means an absent key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
