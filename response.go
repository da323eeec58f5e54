package chiredact

import (
	"errors"
	"net/http"
	"reflect"
	"runtime"
)

// SetError sets an error response in the request context.
// If Handler middleware is not present (state is nil), this is a no-op.
// Use HasState() to check if Handler middleware is active.
func SetError(r *http.Request, err *APIError) {
	state := getState(r.Context())
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.err = err
}

// SetResponse sets a success response in the request context.
// If Handler middleware is not present (state is nil), this is a no-op.
func SetResponse(r *http.Request, status int, body any) {
	state := getState(r.Context())
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.status = status
	state.body = body
}

// SetHeader sets a response header in the request context.
// If Handler middleware is not present (state is nil), this is a no-op.
func SetHeader(r *http.Request, key, value string) {
	state := getState(r.Context())
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.headers == nil {
		state.headers = make(http.Header)
	}
	state.headers.Set(key, value)
}

// AddHeader adds a response header value in the request context.
// If Handler middleware is not present (state is nil), this is a no-op.
func AddHeader(r *http.Request, key, value string) {
	state := getState(r.Context())
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.headers == nil {
		state.headers = make(http.Header)
	}
	state.headers.Add(key, value)
}

// Fail records err as the outcome of the request.
//
// An *APIError (anywhere in the chain) is a handled error and is set as-is,
// like SetError. Any other error is an unhandled failure: the file, line and
// stack of the call to Fail are captured, and Handler answers with
// ErrInternal whose message is err's text passed through the configured
// redactor. The first unhandled failure of a request wins.
//
// If Handler middleware is not present (state is nil), this is a no-op.
// Fail with a nil error is a no-op.
func Fail(r *http.Request, err error) {
	if err == nil {
		return
	}
	state := getState(r.Context())
	if state == nil {
		return
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		state.mu.Lock()
		state.err = apiErr
		state.mu.Unlock()
		return
	}

	state.setFailure(newFailure(failureError, err, 1))
}

// HandlerFunc is an http.Handler that reports failure by returning an error.
// A non-nil error is passed to Fail, with the file and line pointing at the
// function itself.
//
// Without Handler middleware, an *APIError is written as plain text with its
// status and any other error as a plain 500 "Internal server error".
//
// Example:
//
//	r.Method(http.MethodGet, "/users/{id}", chiredact.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
//		user, err := store.Get(r.Context(), chi.URLParam(r, "id"))
//		if err != nil {
//			return err
//		}
//		chiredact.SetResponse(r, http.StatusOK, user)
//		return nil
//	}))
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// ServeHTTP calls fn and records its error.
func (fn HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := fn(w, r)
	if err == nil {
		return
	}

	state := getState(r.Context())
	var apiErr *APIError
	isAPIErr := errors.As(err, &apiErr)

	if state == nil {
		if isAPIErr {
			http.Error(w, apiErr.Message, apiErr.Status)
		} else {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	if isAPIErr {
		SetError(r, apiErr)
		return
	}

	f := newFailure(failureError, err, 0)
	if file, line := funcLocation(fn); file != "" {
		f.diag.File = file
		f.diag.Line = line
	}
	state.setFailure(f)
}

func funcLocation(fn any) (string, int) {
	rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if rf == nil {
		return "", 0
	}
	return rf.FileLine(rf.Entry())
}
