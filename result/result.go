// Package result provides a two-case container used as the return type of every
// fallible client operation.
//
// A Result holds either a success value or a failure reason, never both and
// never neither. The zero value is treated as a failure carrying ErrEmptyResult,
// so callers cannot mistake an uninitialised Result for a successful one.
package result

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResult is reported by a zero Result that was never constructed
	// through Ok, Err or From.
	ErrEmptyResult = errors.New("empty result")

	// ErrNilReason replaces a nil error handed to Err.
	ErrNilReason = errors.New("failure without reason")
)

// Result is a tagged variant holding either a value of T or a failure reason.
type Result[T any] struct {
	value T
	err   error
	ok    bool
}

// Ok wraps a success value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Err wraps a failure reason. A nil err is replaced by ErrNilReason.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = ErrNilReason
	}
	return Result[T]{err: err}
}

// From adapts a conventional (value, error) pair. A non-nil err wins and the
// value is discarded.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the result holds a success value.
func (r Result[T]) IsOk() bool {
	return r.ok
}

// IsErr reports whether the result holds a failure reason.
func (r Result[T]) IsErr() bool {
	return !r.ok
}

// Value returns the success value and true, or the zero T and false.
func (r Result[T]) Value() (T, bool) {
	if !r.ok {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Err returns the failure reason, or nil for a success.
func (r Result[T]) Err() error {
	if r.ok {
		return nil
	}
	if r.err == nil {
		return ErrEmptyResult
	}
	return r.err
}

// Unwrap converts the result back into a (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if err := r.Err(); err != nil {
		var zero T
		return zero, err
	}
	return r.value, nil
}

// Match calls exactly one of onOk or onErr. Nil callbacks are skipped.
func (r Result[T]) Match(onOk func(T), onErr func(error)) {
	if r.ok {
		if onOk != nil {
			onOk(r.value)
		}
		return
	}
	if onErr != nil {
		onErr(r.Err())
	}
}

func (r Result[T]) String() string {
	if r.ok {
		return fmt.Sprintf("Ok(%v)", r.value)
	}
	return fmt.Sprintf("Err(%v)", r.Err())
}
