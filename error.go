package jsbridge

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrClosed is returned by every operation on a Context after Close.
	// Ticking a torn-down engine would corrupt its state, so the failure is
	// immediate rather than a silent no-op.
	ErrClosed = errors.New("jsbridge: context is closed")

	// ErrNotSettled is returned by Promise.Result, Promise.Exception,
	// Future.Result and Future.Err before the value has settled.
	ErrNotSettled = errors.New("jsbridge: result is not ready")

	// ErrDirectSettlement is returned by Future.SetResult and
	// Future.SetException. A Future settles only by observing its
	// JavaScript promise; forcing a terminal value from outside is a
	// programming error.
	ErrDirectSettlement = errors.New("jsbridge: future settles only through its promise")

	// ErrCancelled is the terminal error of a cancelled Future.
	ErrCancelled = errors.New("jsbridge: future cancelled")

	// ErrNotFound is returned by GetValue when the global does not exist.
	ErrNotFound = errors.New("jsbridge: value not found")

	// ErrTimeout is the terminal error of an evaluation that exceeded the
	// context's configured timeout.
	ErrTimeout = errors.New("jsbridge: evaluation timed out")
)

// Error represents a JavaScript error with detailed information.
type Error struct {
	Name    string // Error name (e.g., "TypeError", "ReferenceError")
	Message string // Error message
	Stack   string // Stack trace
}

// Error implements the error interface.
func (err *Error) Error() string {
	if err.Name == "" {
		return err.Message
	}
	return fmt.Sprintf("%s: %s", err.Name, err.Message)
}

// newJSError converts an error escaping the goja VM into a stable error
// value. Exceptions become *Error; interrupts raised by the evaluation
// watchdog map back to ErrTimeout.
func newJSError(err error) error {
	if err == nil {
		return nil
	}

	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		if v, ok := intr.Value().(error); ok && errors.Is(v, ErrTimeout) {
			return ErrTimeout
		}
		return intr
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exceptionError(exc.Value())
	}
	return err
}

// exceptionError builds *Error from a thrown JavaScript value.
func exceptionError(v goja.Value) error {
	e := &Error{}
	if v == nil {
		e.Message = "unknown exception"
		return e
	}

	if obj, ok := v.(*goja.Object); ok {
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			e.Name = name.String()
		}
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			e.Message = msg.String()
		}
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			e.Stack = stack.String()
		}
	}
	if e.Name == "" && e.Message == "" {
		e.Message = v.String()
	}
	return e
}
