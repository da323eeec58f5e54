package chiredact

import (
	"context"
	"net/http"
	"sync"
)

type stateContextKey string

const stateKey stateContextKey = "chiredact_state"

// State holds the response state for a request.
type State struct {
	mu      sync.Mutex
	err     *APIError
	failure *failure
	status  int
	body    any
	headers http.Header
}

// setFailure records an unhandled failure. The first failure wins; a panic
// raised while handling a failure does not replace the original diagnostics.
func (s *State) setFailure(f *failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		s.failure = f
	}
}

// HasState returns true if Handler state exists in the context.
func HasState(ctx context.Context) bool {
	return getState(ctx) != nil
}

func getState(ctx context.Context) *State {
	state, _ := ctx.Value(stateKey).(*State)
	return state
}
