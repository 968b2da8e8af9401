package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

type recordingHandle struct {
	id       string
	mu       sync.Mutex
	events   []Event
	closed   bool
	failWith error
	panics   bool
}

func newHandle() *recordingHandle {
	return &recordingHandle{id: uuid.NewString()}
}

func (h *recordingHandle) ID() string { return h.id }

func (h *recordingHandle) Send(event Event) error {
	if h.panics {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWith != nil {
		return h.failWith
	}
	if h.closed {
		return ErrHandleClosed
	}
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *recordingHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *recordingHandle) received(eventType string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memoryLog struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (l *memoryLog) Append(_ context.Context, msg Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.messages = append(l.messages, msg)
	return nil
}

func (l *memoryLog) all() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

var errUnknownToken = errors.New("unknown token")

type staticVerifier map[string]Identity

func (v staticVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	identity, ok := v[credential]
	if !ok {
		return 0, errUnknownToken
	}
	return identity, nil
}
