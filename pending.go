package appauth

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/mcp-appauth/connection"
	"github.com/giantswarm/mcp-appauth/interaction"
	"github.com/giantswarm/mcp-appauth/request"
)

// resultHandle settles exactly once with either a token or an error.
type resultHandle struct {
	once  sync.Once
	done  chan struct{}
	token *TokenResult
	err   error
}

func newResultHandle() *resultHandle {
	return &resultHandle{done: make(chan struct{})}
}

// settle records the result if the handle is unsettled and reports whether
// it did.
func (h *resultHandle) settle(tok *TokenResult, err error) bool {
	settled := false
	h.once.Do(func() {
		h.token, h.err = tok, err
		close(h.done)
		settled = true
	})
	return settled
}

// wait blocks until the handle is settled.
func (h *resultHandle) wait() (*TokenResult, error) {
	<-h.done
	return h.token, h.err
}

// pendingAuthorization correlates an outstanding authorize call with the
// outcome of its interaction.
type pendingAuthorization struct {
	operationID string
	handle      *resultHandle
	policy      connection.Policy
	client      *http.Client
	request     *request.AuthorizationRequest
	createdAt   time.Time

	// outcomes receives the single accepted outcome.
	outcomes chan interaction.Outcome
}

func newPendingAuthorization(operationID string, policy connection.Policy, client *http.Client, req *request.AuthorizationRequest, now time.Time) *pendingAuthorization {
	return &pendingAuthorization{
		operationID: operationID,
		handle:      newResultHandle(),
		policy:      policy,
		client:      client,
		request:     req,
		createdAt:   now,
		outcomes:    make(chan interaction.Outcome, 1),
	}
}

// accepts reports whether outcome answers this authorization. An outcome
// without state is accepted only when it reports an error raised by the
// surface itself.
func (p *pendingAuthorization) accepts(outcome interaction.Outcome) bool {
	if outcome.State == "" {
		return outcome.Err != nil
	}
	return subtle.ConstantTimeCompare([]byte(outcome.State), []byte(p.request.State)) == 1
}

// pendingSlot holds at most one pending authorization. Once drained it
// accepts no further installs.
type pendingSlot struct {
	mu      sync.Mutex
	current *pendingAuthorization
	closed  bool
}

// install stores p. Under OverlapReject an occupied slot is left untouched
// and ErrAuthorizationInProgress is returned; under OverlapSupersede the
// replaced authorization is returned. A drained slot returns
// ErrCoordinatorClosed.
func (s *pendingSlot) install(p *pendingAuthorization, policy OverlapPolicy) (*pendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrCoordinatorClosed
	}

	previous := s.current
	if previous != nil && policy == OverlapReject {
		return nil, ErrAuthorizationInProgress
	}
	s.current = p
	return previous, nil
}

// take clears the slot if it holds p and outcome answers it. It reports
// ErrNoPendingAuthorization or ErrStateMismatch otherwise.
func (s *pendingSlot) take(p *pendingAuthorization, outcome interaction.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == nil || s.current != p {
		return ErrNoPendingAuthorization
	}
	if !p.accepts(outcome) {
		return ErrStateMismatch
	}
	s.current = nil
	return nil
}

// takeCurrent is take for whatever authorization is pending.
func (s *pendingSlot) takeCurrent(outcome interaction.Outcome) (*pendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.current
	if p == nil {
		return nil, ErrNoPendingAuthorization
	}
	if !p.accepts(outcome) {
		return p, ErrStateMismatch
	}
	s.current = nil
	return p, nil
}

// clear empties the slot if it still holds p.
func (s *pendingSlot) clear(p *pendingAuthorization) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != p {
		return false
	}
	s.current = nil
	return true
}

// get returns the pending authorization, or nil.
func (s *pendingSlot) get() *pendingAuthorization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// drain empties and closes the slot and returns what it held.
func (s *pendingSlot) drain() *pendingAuthorization {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.current
	s.current = nil
	s.closed = true
	return p
}

// occupancy returns 1 while an authorization is pending, else 0.
func (s *pendingSlot) occupancy() int64 {
	if s.get() != nil {
		return 1
	}
	return 0
}
