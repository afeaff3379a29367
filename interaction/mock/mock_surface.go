// Package mock provides a mock implementation of the interaction.Surface
// interface for testing.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/mcp-appauth/interaction"
	"github.com/giantswarm/mcp-appauth/request"
)

// MockSurface is a mock implementation of the interaction.Surface interface.
//
// By default Launch records the request and returns without delivering; the
// test then settles the interaction with Approve, Deny or Deliver. Set
// LaunchFunc to respond synchronously instead.
type MockSurface struct {
	// LaunchFunc is called when Launch() is invoked
	LaunchFunc func(ctx context.Context, req *request.AuthorizationRequest, deliver interaction.DeliverFunc) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	mu       sync.Mutex
	requests []*request.AuthorizationRequest
	delivers []interaction.DeliverFunc
	launched chan *request.AuthorizationRequest
}

// NewMockSurface creates a mock surface that defers delivery to the test.
func NewMockSurface() *MockSurface {
	return &MockSurface{
		CallCounts: make(map[string]int),
		launched:   make(chan *request.AuthorizationRequest, 16),
	}
}

// ApproveAll returns a mock surface that immediately answers every request
// with the given code and the request's state.
func ApproveAll(code string) *MockSurface {
	m := NewMockSurface()
	m.LaunchFunc = func(_ context.Context, req *request.AuthorizationRequest, deliver interaction.DeliverFunc) error {
		deliver(interaction.Outcome{Code: code, State: req.State})
		return nil
	}
	return m
}

// Launch records the request and calls LaunchFunc if set.
func (m *MockSurface) Launch(ctx context.Context, req *request.AuthorizationRequest, deliver interaction.DeliverFunc) error {
	// Lock only to record the call; LaunchFunc may call back into the mock.
	m.mu.Lock()
	m.CallCounts["Launch"]++
	m.requests = append(m.requests, req)
	m.delivers = append(m.delivers, deliver)
	fn := m.LaunchFunc
	m.mu.Unlock()

	select {
	case m.launched <- req:
	default:
	}

	if fn == nil {
		return nil
	}
	return fn(ctx, req, deliver)
}

// Launched returns a channel receiving each launched request.
func (m *MockSurface) Launched() <-chan *request.AuthorizationRequest {
	return m.launched
}

// LaunchCount returns the number of Launch calls.
func (m *MockSurface) LaunchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts["Launch"]
}

// LastRequest returns the most recently launched request, or nil.
func (m *MockSurface) LastRequest() *request.AuthorizationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Deliver settles the most recent launch with outcome.
func (m *MockSurface) Deliver(outcome interaction.Outcome) {
	m.mu.Lock()
	var deliver interaction.DeliverFunc
	if n := len(m.delivers); n > 0 {
		deliver = m.delivers[n-1]
	}
	m.mu.Unlock()

	if deliver != nil {
		deliver(outcome)
	}
}

// Approve settles the most recent launch with code and that request's state.
func (m *MockSurface) Approve(code string) {
	req := m.LastRequest()
	if req == nil {
		return
	}
	m.Deliver(interaction.Outcome{Code: code, State: req.State})
}

// Deny settles the most recent launch as canceled by the user.
func (m *MockSurface) Deny() {
	m.Deliver(interaction.Canceled())
}
