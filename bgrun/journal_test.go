package bgrun

import (
	"sync"
	"testing"
	"time"
)

// mockJournal is an in-memory storage of journals, primarily used for testing.
// A zero-value instance is a valid instance.
type mockJournal struct {
	mutex    sync.Mutex
	journals []Event
}

var _ Journaler = (*mockJournal)(nil)

// Write appends a journal event into the internal store.
func (m *mockJournal) Write(ev Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.journals = append(m.journals, ev)
	return nil
}

// Journals returns a copy of the journal slice.
func (m *mockJournal) Journals() []Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return append([]Event(nil), m.journals...)
}

// Find returns the first event of type T that matches, if any. A nil match
// matches any event of type T.
func find[T Event](m *mockJournal, match func(T) bool) (T, bool) {
	for _, ev := range m.Journals() {
		if ev, ok := ev.(T); ok && (match == nil || match(ev)) {
			return ev, true
		}
	}

	var zero T
	return zero, false
}

// waitFor waits until an event of type T that matches is journaled. Events
// come from many goroutines, so their order is not checked.
func waitFor[T Event](t *testing.T, m *mockJournal, match func(T) bool) T {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for {
		if ev, ok := find(m, match); ok {
			return ev
		}

		if time.Now().After(deadline) {
			var zero T
			t.Fatalf("timed out waiting for %T, journal: %#v", zero, m.Journals())
			return zero
		}

		time.Sleep(5 * time.Millisecond)
	}
}
