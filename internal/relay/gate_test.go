package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestGate(policy SupersedePolicy) (*Gate, *Registry, *memoryLog) {
	registry := NewRegistry()
	log := &memoryLog{}
	router := NewRouter(registry, log, nil, nil)
	verifier := staticVerifier{"token-1": 1, "token-2": 2, "token-3": 3}
	return NewGate(verifier, registry, router, policy, nil, nil), registry, log
}

func TestGate_Authenticate(t *testing.T) {
	req := require.New(t)
	gate, registry, _ := newTestGate(SupersedeClose)
	observer := newHandle()
	registry.Put(9, observer)

	identity, err := gate.Authenticate(context.Background(), "token-2")
	req.NoError(err)
	req.Equal(Identity(2), identity)

	for _, credential := range []string{"", "forged"} {
		_, err = gate.Authenticate(context.Background(), credential)
		req.ErrorIs(err, ErrRejected)
	}

	// Rejected or merely authenticated attempts never touch the registry
	req.Equal([]Identity{9}, registry.Snapshot())
	req.Empty(observer.received(EventUserStatus))
}

func TestGate_Admit_Registers_Before_Broadcast(t *testing.T) {
	req := require.New(t)
	gate, registry, _ := newTestGate(SupersedeClose)
	h := newHandle()

	gate.Admit(1, h)

	// The admitted handle itself is already registered when presence goes out
	status := h.received(EventUserStatus)
	req.Len(status, 1)
	req.Equal(PresenceEvent{UserID: 1, Online: true}, status[0].Data)
	req.True(registry.Online(1))
}

func TestGate_Presence_Round_Trip(t *testing.T) {
	req := require.New(t)
	gate, registry, _ := newTestGate(SupersedeClose)
	observer := newHandle()
	gate.Admit(3, observer)

	x := newHandle()
	gate.Admit(1, x)
	req.True(gate.Release(1, x))

	status := observer.received(EventUserStatus)
	req.Len(status, 3)
	req.Equal(PresenceEvent{UserID: 1, Online: true}, status[1].Data)
	req.Equal(PresenceEvent{UserID: 1, Online: false}, status[2].Data)
	req.Equal([]Identity{3}, registry.Snapshot())
}

func TestGate_Supersede_Close(t *testing.T) {
	req := require.New(t)
	gate, registry, _ := newTestGate(SupersedeClose)
	observer := newHandle()
	gate.Admit(3, observer)
	a, b := newHandle(), newHandle()

	// Given identity 1 reconnects on B while A is still up
	gate.Admit(1, a)
	gate.Admit(1, b)

	// Then A has been closed by the gate
	req.True(a.isClosed())
	req.False(b.isClosed())

	// When A's connection loop ends
	req.False(gate.Release(1, a))

	// Then B is still the registered handle and no offline event went out
	got, ok := registry.Lookup(1)
	req.True(ok)
	req.Same(b, got)
	for _, e := range observer.received(EventUserStatus) {
		req.True(e.Data.(PresenceEvent).Online)
	}
}

func TestGate_Supersede_Keep(t *testing.T) {
	gate, _, _ := newTestGate(SupersedeKeep)
	a, b := newHandle(), newHandle()

	gate.Admit(1, a)
	gate.Admit(1, b)

	require.False(t, a.isClosed())
}

func TestGate_Serve_Releases_On_Panic(t *testing.T) {
	req := require.New(t)
	gate, registry, _ := newTestGate(SupersedeClose)
	observer := newHandle()
	gate.Admit(3, observer)
	h := newHandle()

	req.Panics(func() {
		gate.Serve(1, h, func() {
			req.True(registry.Online(1))
			panic("connection loop exploded")
		})
	})

	req.False(registry.Online(1))
	status := observer.received(EventUserStatus)
	req.Equal(PresenceEvent{UserID: 1, Online: false}, status[len(status)-1].Data)
}

func TestParseSupersedePolicy(t *testing.T) {
	require.Equal(t, SupersedeKeep, ParseSupersedePolicy(" KEEP "))
	require.Equal(t, SupersedeClose, ParseSupersedePolicy("close"))
	require.Equal(t, SupersedeClose, ParseSupersedePolicy(""))
	require.Equal(t, SupersedeClose, ParseSupersedePolicy("whatever"))
}
