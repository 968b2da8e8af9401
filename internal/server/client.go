package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/pairchat/internal/config"
	"github.com/Tyrowin/pairchat/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one authenticated WebSocket connection. It is the relay.Handle
// the registry points at while the connection is the live one for its
// identity.
type Client struct {
	id       string
	identity relay.Identity
	conn     *websocket.Conn
	addr     string
	ctx      context.Context
	router   *relay.Router
	logger   *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig
}

// NewClient wraps conn for identity. The send channel is buffered so routing
// never waits on the network.
func NewClient(conn *websocket.Conn, identity relay.Identity, addr string, s *Server) *Client {
	if conn != nil {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	id := uuid.NewString()
	rateLimit := s.cfg.RateLimit()

	return &Client{
		id:             id,
		identity:       identity,
		conn:           conn,
		addr:           addr,
		ctx:            s.hub.Context(),
		router:         s.router,
		logger:         s.logger.With(zap.String("handle", id), zap.Int64("user", int64(identity)), zap.String("addr", addr)),
		send:           make(chan []byte, s.cfg.SendBufferSize),
		maxMessageSize: s.cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(rateLimit.Burst, rateLimit.RefillInterval),
		rateLimit:      rateLimit,
	}
}

// ID implements relay.Handle.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the identity the connection was admitted as.
func (c *Client) Identity() relay.Identity {
	return c.identity
}

// Send queues an event without blocking. A client that cannot keep up is
// closed rather than allowed to stall the sender.
func (c *Client) Send(event relay.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return relay.ErrHandleClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.logger.Warn("Closing client with full send buffer")
		c.closeLocked()
		return relay.ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and tears down the
// transport. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("Error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("Error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// logReadError reports why the read loop is ending.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("Message exceeded maximum size", zap.Int64("max_bytes", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug("Client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("Client connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("Unexpected WebSocket error", zap.Error(err))
	default:
		c.logger.Info("WebSocket read error", zap.Error(err))
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Info("Rate limit exceeded; discarding frame",
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("interval", c.rateLimit.RefillInterval))
		return false
	}
	return true
}

// processMessage decodes one inbound frame and hands it to the router. A
// panic while handling the frame is contained to this connection.
func (c *Client) processMessage(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic while handling frame", zap.Any("panic", r))
			c.router.SendError(c, "internal error")
		}
	}()

	var in relay.InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		c.reject("invalid message format", err)
		return
	}

	switch in.Type {
	case relay.EventSendMessage:
		var req relay.SendMessageRequest
		if err := decodePayload(in.Data, &req); err != nil {
			c.reject("invalid send_message payload", err)
			return
		}
		if _, err := c.router.RouteMessage(c.ctx, c, c.identity, req.ReceiverID, req.Text); err != nil {
			c.logger.Error("Message could not be recorded", zap.Error(err))
			c.router.SendError(c, "message could not be sent")
		}

	case relay.EventTyping:
		var req relay.TypingRequest
		if err := decodePayload(in.Data, &req); err != nil {
			c.reject("invalid typing payload", err)
			return
		}
		c.router.RouteTyping(c.identity, req.ReceiverID, req.IsTyping)

	default:
		c.reject(fmt.Sprintf("unknown event type %q", in.Type), nil)
	}
}

func (c *Client) reject(reason string, err error) {
	c.logger.Debug("Rejected inbound frame", zap.String("reason", reason), zap.Error(err))
	c.router.SendError(c, reason)
}

func decodePayload(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// readPump reads frames until the transport fails or closes. The caller is
// responsible for releasing the registry entry afterwards.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		if !ok {
			return c.writeCloseMessage()
		}
		return c.writeTextMessages(message)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the transport, ignoring the errors of a connection
// that is already gone.
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("Error closing connection", zap.Error(err))
	}
}

func (c *Client) writeCloseMessage() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("Error writing close message", zap.Error(err))
	}
	return false
}

// writeTextMessages writes message and whatever else is already queued, one
// JSON document per frame.
func (c *Client) writeTextMessages(message []byte) bool {
	if !c.writeFrame(message) {
		return false
	}
	for n := len(c.send); n > 0; n-- {
		queued, ok := <-c.send
		if !ok {
			return c.writeCloseMessage()
		}
		if !c.writeFrame(queued) {
			return false
		}
	}
	return true
}

func (c *Client) writeFrame(payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("Error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Info("Error writing message", zap.Error(err))
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("Error setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug("Error writing ping message", zap.Error(err))
		return false
	}
	return true
}
