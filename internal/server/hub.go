package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub tracks every running connection so shutdown can close them and wait
// for their pumps. Routing does not go through the hub: who is reachable is
// the relay registry's concern.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients: make(map[*Client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Context is cancelled when shutdown begins.
func (h *Hub) Context() context.Context {
	return h.ctx
}

// Start launches the write pump for client and runs serve on its own
// goroutine. It returns false once shutdown has begun, in which case the
// client is closed immediately.
func (h *Hub) Start(client *Client, serve func()) bool {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		client.Close()
		client.closeConnection()
		return false
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Debug("Connection started", zap.String("addr", client.addr), zap.Int("connections", count))

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		defer h.forget(client)
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Recovered from panic in connection", zap.String("addr", client.addr), zap.Any("panic", r))
			}
		}()
		serve()
	}()
	return true
}

func (h *Hub) forget(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Connection finished", zap.String("addr", client.addr), zap.Int("connections", count))
}

// Count returns the number of running connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// shutdownClients closes every active connection so the pumps unwind.
func (h *Hub) shutdownClients() int {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
		client.closeConnection()
	}
	return len(clients)
}

// Shutdown closes all connections and waits for their goroutines to finish
// or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown")

	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.cancel()

	closed := h.shutdownClients()
	h.logger.Info("Closed client connections", zap.Int("count", closed))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached, some connections may still be running")
		return context.DeadlineExceeded
	}
}
