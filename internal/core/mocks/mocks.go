package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/plantpulse/mes-backend/internal/core/domain"
)

// RecordingSink is an in-memory ports.EventSink that captures every event in
// order. It is the workhorse for dispatcher tests: assertions inspect the
// captured sequence rather than mock call expectations, because event order
// matters.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Broadcast(event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything broadcast so far, in order.
func (s *RecordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns the captured events carrying the given name, in order.
func (s *RecordingSink) Named(name domain.EventName) []domain.Event {
	var out []domain.Event
	for _, e := range s.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all captured events.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// MockMaterialCatalog is a mock implementation of ports.MaterialCatalog.
type MockMaterialCatalog struct {
	mock.Mock
}

func NewMockMaterialCatalog() *MockMaterialCatalog {
	return &MockMaterialCatalog{}
}

func (m *MockMaterialCatalog) MaterialName(ctx context.Context, materialID string) (string, error) {
	args := m.Called(ctx, materialID)
	return args.String(0), args.Error(1)
}

// MockEventMirror is a mock implementation of ports.EventMirror.
type MockEventMirror struct {
	mock.Mock
}

func NewMockEventMirror() *MockEventMirror {
	return &MockEventMirror{}
}

func (m *MockEventMirror) Mirror(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventMirror) Close() {
	m.Called()
}
