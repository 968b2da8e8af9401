package relay

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/pairchat/internal/metrics"
)

// SupersedePolicy decides what happens to a connection replaced by a newer
// connection of the same identity.
type SupersedePolicy string

const (
	// SupersedeClose closes the replaced connection right after the new one
	// is registered.
	SupersedeClose SupersedePolicy = "close"
	// SupersedeKeep leaves the replaced connection open until its transport
	// ends on its own. It no longer receives routed events.
	SupersedeKeep SupersedePolicy = "keep"
)

// ParseSupersedePolicy maps a configuration value to a policy, defaulting to
// SupersedeClose.
func ParseSupersedePolicy(value string) SupersedePolicy {
	if SupersedePolicy(strings.ToLower(strings.TrimSpace(value))) == SupersedeKeep {
		return SupersedeKeep
	}
	return SupersedeClose
}

// Gate admits authenticated connections into the registry and guarantees
// that every admission is matched by a release.
type Gate struct {
	verifier Verifier
	registry *Registry
	router   *Router
	policy   SupersedePolicy
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewGate wires the admission path. logger and collector may be nil.
func NewGate(verifier Verifier, registry *Registry, router *Router, policy SupersedePolicy, logger *zap.Logger, collector *metrics.Collector) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy != SupersedeKeep {
		policy = SupersedeClose
	}
	return &Gate{
		verifier: verifier,
		registry: registry,
		router:   router,
		policy:   policy,
		logger:   logger,
		metrics:  collector,
	}
}

// Authenticate resolves the credential of a connection attempt. It must run
// before the transport is upgraded; a rejection leaves no trace in the
// registry and triggers no broadcast.
func (g *Gate) Authenticate(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		g.metrics.Admission(metrics.AdmissionRejected)
		return 0, fmt.Errorf("%w: missing credential", ErrRejected)
	}

	identity, err := g.verifier.Verify(ctx, credential)
	if err != nil {
		g.metrics.Admission(metrics.AdmissionRejected)
		return 0, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return identity, nil
}

// Admit registers handle as the live connection of identity, then announces
// the identity online.
func (g *Gate) Admit(identity Identity, handle Handle) {
	previous := g.registry.Put(identity, handle)
	g.metrics.Admission(metrics.AdmissionAccepted)
	g.metrics.SetOnline(g.registry.Len())

	if previous != nil {
		g.logger.Info("Connection superseded",
			zap.Int64("user", int64(identity)),
			zap.String("previous", previous.ID()),
			zap.String("current", handle.ID()),
			zap.String("policy", string(g.policy)))
		if g.policy == SupersedeClose {
			previous.Close()
		}
	}

	g.logger.Info("User connected", zap.Int64("user", int64(identity)), zap.String("handle", handle.ID()))
	g.router.BroadcastPresence(identity, true)
}

// Release removes the registry entry of identity if it still belongs to
// handle, then announces the identity offline. A release from a superseded
// connection changes nothing and announces nothing.
func (g *Gate) Release(identity Identity, handle Handle) bool {
	if !g.registry.Remove(identity, handle) {
		g.logger.Debug("Ignoring release of superseded connection",
			zap.Int64("user", int64(identity)),
			zap.String("handle", handle.ID()))
		return false
	}
	g.metrics.SetOnline(g.registry.Len())

	g.logger.Info("User disconnected", zap.Int64("user", int64(identity)), zap.String("handle", handle.ID()))
	g.router.BroadcastPresence(identity, false)
	return true
}

// Serve admits handle, runs the connection loop and releases the handle
// however loop returns, including by panic.
func (g *Gate) Serve(identity Identity, handle Handle, loop func()) {
	g.Admit(identity, handle)
	defer g.Release(identity, handle)
	loop()
}
