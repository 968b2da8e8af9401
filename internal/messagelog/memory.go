// Package messagelog stores routed messages and answers conversation queries.
package messagelog

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/Tyrowin/pairchat/internal/relay"
)

// Store is the full message log contract used by the server.
type Store interface {
	relay.MessageLog
	relay.History
	Close() error
}

// Memory keeps the log in process memory. Appends are atomic and readers
// never observe a partially written record.
type Memory struct {
	mu       sync.RWMutex
	messages []relay.Message
}

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, msg relay.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Conversation returns the messages exchanged between a and b in append order.
func (m *Memory) Conversation(_ context.Context, a, b relay.Identity) ([]relay.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.Filter(m.messages, func(msg relay.Message, _ int) bool {
		return msg.Involves(a, b)
	}), nil
}

// Len returns the number of recorded messages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func (m *Memory) Close() error { return nil }
