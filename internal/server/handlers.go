package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebSocketHandler authenticates the connection attempt and only then
// upgrades it. A rejected attempt gets a 401 and is never registered, so no
// one hears about it.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.gate.Authenticate(r.Context(), credentialFromRequest(r))
	if err != nil {
		s.logger.Info("WebSocket connection rejected", zap.String("addr", r.RemoteAddr), zap.Error(err))
		writeError(w, s.logger, http.StatusUnauthorized, "Authentication error")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Info("WebSocket upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, identity, r.RemoteAddr, s)
	s.hub.Start(client, func() {
		s.gate.Serve(identity, client, client.readPump)
	})
}

type healthResponse struct {
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	ActiveUsers int       `json:"activeUsers"`
}

// HealthHandler reports liveness and how many users are online.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, healthResponse{
		Message:     "Pairchat server is running",
		Timestamp:   time.Now().UTC(),
		ActiveUsers: s.registry.Len(),
	})
}

// TestPageHandler serves a page for exercising the relay protocol by hand.
// Log in through /api/login first so the browser carries the auth cookie.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.logger.Warn("Error writing HTML response", zap.Error(err))
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Pairchat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; font-family: monospace; }
        input { padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Pairchat Relay Test</h1>

    <div>
        <input type="text" id="username" placeholder="user1">
        <input type="password" id="password" placeholder="password1">
        <button onclick="login()">Log in</button>
    </div>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="number" id="receiver" placeholder="receiver id" min="1">
        <input type="text" id="text" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        let typingTimer = null;
        const eventsDiv = document.getElementById('events');
        const textInput = document.getElementById('text');
        const receiverInput = document.getElementById('receiver');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function log(line) {
            const el = document.createElement('div');
            el.textContent = line;
            eventsDiv.appendChild(el);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            textInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        async function login() {
            const res = await fetch('/api/login', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                credentials: 'include',
                body: JSON.stringify({
                    username: document.getElementById('username').value,
                    password: document.getElementById('password').value
                })
            });
            log('login: ' + res.status + ' ' + await res.text());
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => { log('connected'); updateStatus(true); };
            ws.onmessage = (event) => log('<- ' + event.data);
            ws.onclose = () => { log('connection closed'); updateStatus(false); ws = null; };
            ws.onerror = () => { log('connection error'); updateStatus(false); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function send(type, data) {
            const frame = JSON.stringify({ type: type, data: data });
            ws.send(frame);
            log('-> ' + frame);
        }

        function sendMessage() {
            const text = textInput.value.trim();
            const receiverId = parseInt(receiverInput.value, 10);
            if (text && receiverId && ws && ws.readyState === WebSocket.OPEN) {
                send('send_message', { receiverId: receiverId, text: text });
                send('typing', { receiverId: receiverId, isTyping: false });
                textInput.value = '';
            }
        }

        textInput.addEventListener('input', function () {
            const receiverId = parseInt(receiverInput.value, 10);
            if (!receiverId || !ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            if (!typingTimer) {
                send('typing', { receiverId: receiverId, isTyping: true });
            }
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function () {
                send('typing', { receiverId: receiverId, isTyping: false });
                typingTimer = null;
            }, 1500);
        });

        textInput.addEventListener('keypress', function (e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
