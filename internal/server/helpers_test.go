package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/pairchat/internal/auth"
	"github.com/Tyrowin/pairchat/internal/config"
	"github.com/Tyrowin/pairchat/internal/messagelog"
	"github.com/Tyrowin/pairchat/internal/metrics"
	"github.com/Tyrowin/pairchat/internal/relay"
)

const testOrigin = "http://localhost:8080"

type testEnv struct {
	server  *Server
	http    *httptest.Server
	log     *messagelog.Memory
	metrics *metrics.Collector
}

// newTestEnv starts a server with the four demo users and an in-memory log.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.RateLimitBurst = 100
	for _, m := range mutate {
		m(&cfg)
	}

	users := auth.NewUsers(bcrypt.MinCost)
	require.NoError(t, users.SeedDemoUsers(4))

	log := messagelog.NewMemory()
	collector := metrics.NewCollector("pairchat_test")
	s := New(Options{Config: cfg, Users: users, Log: log, Metrics: collector})
	ts := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		ts.Close()
		_ = s.Hub().Shutdown(2 * time.Second)
	})
	return &testEnv{server: s, http: ts, log: log, metrics: collector}
}

func (e *testEnv) url(path string) string {
	return e.http.URL + path
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
}

// token issues a session token for a demo user.
func (e *testEnv) token(t *testing.T, id relay.Identity) string {
	t.Helper()
	user, err := e.server.users.Get(t.Context(), id)
	require.NoError(t, err)
	token, err := e.server.Tokens().Issue(user)
	require.NoError(t, err)
	return token
}

// dialRaw attempts a WebSocket connection with the given credential cookie.
func (e *testEnv) dialRaw(credential string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", testOrigin)
	if credential != "" {
		headers.Set("Cookie", (&http.Cookie{Name: authCookieName, Value: credential}).String())
	}
	return dialer.Dial(e.wsURL(), headers)
}

// connect dials as id and waits for the connection's own online announcement,
// which guarantees the registry entry exists.
func (e *testEnv) connect(t *testing.T, id relay.Identity) *websocket.Conn {
	t.Helper()
	conn, resp, err := e.dialRaw(e.token(t, id))
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	waitForStatus(t, conn, id, true)
	return conn
}

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) (wireEvent, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var ev wireEvent
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev, nil
}

// waitFor reads events until one of type eventType satisfies match, decoding
// its data into dst.
func waitFor[T any](t *testing.T, conn *websocket.Conn, eventType string, match func(T) bool) T {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := readEvent(t, conn, time.Until(deadline))
		require.NoError(t, err, "waiting for %s", eventType)
		if ev.Type != eventType {
			continue
		}
		var data T
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		if match == nil || match(data) {
			return data
		}
	}
	t.Fatalf("timed out waiting for %s", eventType)
	var zero T
	return zero
}

func waitForStatus(t *testing.T, conn *websocket.Conn, id relay.Identity, online bool) {
	t.Helper()
	waitFor(t, conn, relay.EventUserStatus, func(p relay.PresenceEvent) bool {
		return p.UserID == id && p.Online == online
	})
}

// expectSilence asserts no event of eventType arrives within d.
func expectSilence(t *testing.T, conn *websocket.Conn, eventType string, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		ev, err := readEvent(t, conn, time.Until(deadline))
		if err != nil {
			return
		}
		require.NotEqual(t, eventType, ev.Type, "unexpected %s: %s", ev.Type, ev.Data)
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, eventType string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": eventType, "data": data}))
}

// eventually polls cond for up to two seconds.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}
