// Package server exposes the relay over HTTP.
//
// The implementation is split by concern: client.go runs one WebSocket
// connection, hub.go tracks running connections for shutdown, handlers.go
// and api.go hold the endpoints, and routes.go assembles them behind the
// chi middleware stack.
package server
