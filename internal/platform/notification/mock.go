package notification

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrRefused is returned by MockScheduler for refused weekdays.
var ErrRefused = errors.New("notification refused")

// MockScheduler is an in-memory Scheduler for tests. Registrations for any
// weekday listed in RefuseWeekdays fail with ErrRefused.
type MockScheduler struct {
	mu             sync.Mutex
	requests       map[string]Request
	cancels        []string
	RefuseWeekdays map[int]bool
	ListErr        error
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{requests: make(map[string]Request)}
}

func (m *MockScheduler) Schedule(_ context.Context, req Request) (string, error) {
	if err := req.Trigger.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RefuseWeekdays[req.Trigger.Weekday] {
		return "", ErrRefused
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	m.requests[req.ID] = req
	return req.ID, nil
}

func (m *MockScheduler) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, id)
	delete(m.requests, id)
	return nil
}

// List returns outstanding requests sorted by id.
func (m *MockScheduler) List(_ context.Context) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]Request, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockScheduler) CancelAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.requests {
		m.cancels = append(m.cancels, id)
	}
	m.requests = make(map[string]Request)
	return nil
}

// Cancels returns a copy of every id passed to Cancel or removed by CancelAll.
func (m *MockScheduler) Cancels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.cancels))
	copy(out, m.cancels)
	return out
}

// ResetCancels clears the recorded cancellations.
func (m *MockScheduler) ResetCancels() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = nil
}

// MockDeliverer is a test double for Deliverer.
type MockDeliverer struct {
	mu         sync.Mutex
	calls      []Content
	ShouldFail bool
	FailError  string
}

func (m *MockDeliverer) Deliver(_ context.Context, content Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, content)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded deliveries.
func (m *MockDeliverer) Calls() []Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Content, len(m.calls))
	copy(out, m.calls)
	return out
}
