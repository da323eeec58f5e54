package chiredact

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

const maxFrames = 32

// failureKind labels where an unhandled failure came from.
type failureKind string

const (
	failurePanic failureKind = "panic"
	failureError failureKind = "error"
)

// failure is an unhandled error plus the context captured where it surfaced.
type failure struct {
	kind failureKind
	err  error
	diag Diagnostics
}

// coder is implemented by errors that carry an application error code.
type coder interface {
	ErrorCode() string
}

// newFailure captures diagnostics for err. skip is the number of stack frames
// above the caller of newFailure to omit.
func newFailure(kind failureKind, err error, skip int) *failure {
	trace := captureFrames(skip + 1)

	diag := Diagnostics{
		Exception: err.Error(),
		Code:      errorCode(kind, err),
		Trace:     trace,
	}
	if len(trace) > 0 {
		diag.File = trace[0].File
		diag.Line = trace[0].Line
	}

	return &failure{kind: kind, err: err, diag: diag}
}

// panicError converts a recovered panic value into an error.
func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("%v", rec)
}

func errorCode(kind failureKind, err error) string {
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	if kind == failurePanic {
		return string(failurePanic)
	}
	return ""
}

// captureFrames returns up to maxFrames frames starting skip frames above
// its caller. Frames inside the Go runtime are dropped so that a recovered
// panic starts at the frame that panicked.
func captureFrames(skip int) []Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	out := make([]Frame, 0, n)
	for {
		fr, more := frames.Next()
		if !strings.HasPrefix(fr.Function, "runtime.") {
			out = append(out, Frame{
				Function: fr.Function,
				File:     fr.File,
				Line:     fr.Line,
			})
		}
		if !more {
			break
		}
	}
	return out
}
