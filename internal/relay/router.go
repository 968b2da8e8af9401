package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/pairchat/internal/metrics"
)

// Router turns inbound events plus registry state into outbound deliveries.
// It reads the registry but never mutates it.
type Router struct {
	registry *Registry
	log      MessageLog
	logger   *zap.Logger
	metrics  *metrics.Collector
	lastID   atomic.Int64
	now      func() time.Time
}

// NewRouter creates a router delivering through registry and recording
// every message in log. logger and collector may be nil.
func NewRouter(registry *Registry, log MessageLog, logger *zap.Logger, collector *metrics.Collector) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		log:      log,
		logger:   logger,
		metrics:  collector,
		now:      time.Now,
	}
}

// nextID returns a millisecond-based id that is strictly greater than every
// id handed out before, even when several messages share a millisecond.
func (r *Router) nextID(at time.Time) int64 {
	for {
		last := r.lastID.Load()
		candidate := at.UnixMilli()
		if candidate <= last {
			candidate = last + 1
		}
		if r.lastID.CompareAndSwap(last, candidate) {
			return candidate
		}
	}
}

// RouteMessage records a message from one party to another, delivers it to
// the receiver when online and confirms it to the sender's own handle.
// The log append happens exactly once; receiver delivery is best effort.
func (r *Router) RouteMessage(ctx context.Context, sender Handle, from, to Identity, text string) (Message, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	msg := Message{
		ID:         r.nextID(now),
		SenderID:   from,
		ReceiverID: to,
		Text:       text,
		Timestamp:  now,
	}

	if err := r.log.Append(ctx, msg); err != nil {
		r.metrics.MessageRouted(metrics.OutcomeFailed)
		return Message{}, fmt.Errorf("relay: record message %d: %w", msg.ID, err)
	}

	outcome := metrics.OutcomeOffline
	if receiver, ok := r.registry.Lookup(to); ok {
		outcome = metrics.OutcomeDelivered
		if err := r.deliver(receiver, Event{Type: EventNewMessage, Data: msg}); err != nil {
			outcome = metrics.OutcomeFailed
			r.logger.Warn("Dropping message for unreachable receiver",
				zap.Int64("message_id", msg.ID),
				zap.Int64("receiver", int64(to)),
				zap.Error(err))
		}
	}
	r.metrics.MessageRouted(outcome)

	if sender != nil {
		if err := r.deliver(sender, Event{Type: EventMessageSent, Data: msg}); err != nil {
			r.logger.Warn("Could not confirm message to sender",
				zap.Int64("message_id", msg.ID),
				zap.Int64("sender", int64(from)),
				zap.Error(err))
		}
	}

	r.logger.Debug("Routed message",
		zap.Int64("message_id", msg.ID),
		zap.Int64("sender", int64(from)),
		zap.Int64("receiver", int64(to)),
		zap.String("outcome", outcome))
	return msg, nil
}

// RouteTyping forwards a typing signal to the receiver when online and
// silently discards it otherwise.
func (r *Router) RouteTyping(from, to Identity, isTyping bool) {
	receiver, ok := r.registry.Lookup(to)
	if !ok {
		r.metrics.TypingRouted(metrics.OutcomeOffline)
		return
	}

	event := Event{Type: EventUserTyping, Data: TypingSignal{UserID: from, IsTyping: isTyping}}
	if err := r.deliver(receiver, event); err != nil {
		r.metrics.TypingRouted(metrics.OutcomeFailed)
		r.logger.Debug("Dropping typing signal",
			zap.Int64("sender", int64(from)),
			zap.Int64("receiver", int64(to)),
			zap.Error(err))
		return
	}
	r.metrics.TypingRouted(metrics.OutcomeDelivered)
}

// BroadcastPresence pushes a presence change to every registered handle. The
// recipients come from one registry snapshot; a failing recipient does not
// stop delivery to the others. It returns the number of successful deliveries.
func (r *Router) BroadcastPresence(identity Identity, online bool) int {
	handles := r.registry.Handles()
	event := Event{Type: EventUserStatus, Data: PresenceEvent{UserID: identity, Online: online}}

	delivered := 0
	for _, handle := range handles {
		if err := r.deliver(handle, event); err != nil {
			r.logger.Debug("Presence delivery failed",
				zap.String("handle", handle.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}

	r.metrics.PresenceBroadcast(online)
	r.logger.Info("Broadcast presence",
		zap.Int64("user", int64(identity)),
		zap.Bool("online", online),
		zap.Int("recipients", delivered))
	return delivered
}

// SendError pushes an error event to a single handle.
func (r *Router) SendError(handle Handle, reason string) {
	if err := r.deliver(handle, Event{Type: EventError, Data: ErrorPayload{Error: reason}}); err != nil {
		r.logger.Debug("Could not deliver error event", zap.String("handle", handle.ID()), zap.Error(err))
	}
}

func (r *Router) deliver(handle Handle, event Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("relay: delivery to %s panicked: %v", handle.ID(), rec)
		}
		if err != nil {
			r.metrics.DeliveryFailed(event.Type)
		}
	}()
	return handle.Send(event)
}
