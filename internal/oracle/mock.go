package oracle

import (
	"context"
	"fmt"
	"sync"
)

// MockClient replays scripted replies in order. Tests script the exact
// sequence of model responses and assert on what the caller did with them.
type MockClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]Message
}

func NewMockClient(replies ...string) *MockClient {
	return &MockClient{replies: replies}
}

// SetError makes every subsequent Chat call fail with err.
func (m *MockClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockClient) Chat(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]Message(nil), messages...))

	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", fmt.Errorf("mock client has no replies left (call %d)", len(m.calls))
	}

	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

// CallCount reports how many times Chat was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastMessages returns the message list of the most recent call, or nil.
func (m *MockClient) LastMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}
