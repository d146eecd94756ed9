package wsflush

import "sync"

// MockCallback is a queue.Callback that records whether it was invoked
// and with what result, for use in tests: a small, call-tracking
// stand-in for a real collaborator.
type MockCallback struct {
	mu        sync.Mutex
	succeeded bool
	failed    bool
	err       error
	done      chan struct{}
}

// NewMockCallback creates a MockCallback. Wait can be used to block
// until the callback fires.
func NewMockCallback() *MockCallback {
	return &MockCallback{done: make(chan struct{})}
}

func (m *MockCallback) Succeeded() {
	m.mu.Lock()
	m.succeeded = true
	m.mu.Unlock()
	close(m.done)
}

func (m *MockCallback) Failed(err error) {
	m.mu.Lock()
	m.failed = true
	m.err = err
	m.mu.Unlock()
	close(m.done)
}

// Wait blocks until the callback fires.
func (m *MockCallback) Wait() {
	<-m.done
}

// Result reports whether the callback fired, whether it succeeded, and
// the error it failed with (nil on success or if it hasn't fired yet).
func (m *MockCallback) Result() (fired, succeeded bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.succeeded || m.failed, m.succeeded, m.err
}
