package negotiate

import (
	"sync"
	"time"
)

// mockClock is a Clock that only moves when Advance is called.
type mockClock struct {
	mu      sync.Mutex
	current time.Time
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

func newMockClock(start time.Time) *mockClock {
	return &mockClock{current: start}
}
