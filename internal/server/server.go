package server

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/pairchat/internal/auth"
	"github.com/Tyrowin/pairchat/internal/config"
	"github.com/Tyrowin/pairchat/internal/messagelog"
	"github.com/Tyrowin/pairchat/internal/metrics"
	"github.com/Tyrowin/pairchat/internal/relay"
)

var validate = validator.New()

// Options are the collaborators of a Server. Logger and Metrics may be nil.
type Options struct {
	Config  config.Config
	Users   *auth.Users
	Log     messagelog.Store
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Server owns the relay core and the transport around it.
type Server struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	users    *auth.Users
	tokens   *auth.Tokens
	history  relay.History
	registry *relay.Registry
	router   *relay.Router
	gate     *relay.Gate
	hub      *Hub
	origins  *OriginPolicy
	upgrader websocket.Upgrader
}

// New builds a server from opts.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config.Sanitize()
	if opts.Log == nil {
		opts.Log = messagelog.NewMemory()
	}
	if opts.Users == nil {
		opts.Users = auth.NewUsers(0)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, time.Duration(cfg.TokenTTL))
	registry := relay.NewRegistry()
	router := relay.NewRouter(registry, opts.Log, logger.Named("router"), opts.Metrics)
	gate := relay.NewGate(
		auth.NewVerifier(tokens, opts.Users),
		registry,
		router,
		relay.ParseSupersedePolicy(cfg.SupersedePolicy),
		logger.Named("gate"),
		opts.Metrics,
	)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  opts.Metrics,
		users:    opts.Users,
		tokens:   tokens,
		history:  opts.Log,
		registry: registry,
		router:   router,
		gate:     gate,
		hub:      NewHub(logger.Named("hub")),
		origins:  NewOriginPolicy(cfg.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.Check,
	}
	return s
}

// Registry exposes who is online.
func (s *Server) Registry() *relay.Registry {
	return s.registry
}

// Tokens exposes the session token service.
func (s *Server) Tokens() *auth.Tokens {
	return s.tokens
}

// Hub returns the connection tracker used for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the complete HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.Routes()
}
