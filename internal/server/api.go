package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Tyrowin/pairchat/internal/auth"
	"github.com/Tyrowin/pairchat/internal/relay"
)

type identityKey struct{}

type loginResponse struct {
	Success bool      `json:"success"`
	User    auth.User `json:"user"`
}

type rosterEntry struct {
	auth.User
	Online bool `json:"online"`
}

// LoginHandler checks a username and password and sets the session cookie.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		s.logger.Info("Login failed", zap.String("username", req.Username), zap.Error(err))
		writeError(w, s.logger, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("Could not issue session token", zap.Int64("user", int64(user.ID)), zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "Server error")
		return
	}

	http.SetCookie(w, s.sessionCookie(token, int(s.tokens.TTL().Seconds())))
	writeJSON(w, s.logger, http.StatusOK, loginResponse{Success: true, User: user})
}

// LogoutHandler clears the session cookie.
func (s *Server) LogoutHandler(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, s.sessionCookie("", -1))
	writeJSON(w, s.logger, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	}
}

// authenticate rejects API calls without a valid session token and stores
// the caller's identity in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := credentialFromRequest(r)
		if credential == "" {
			writeError(w, s.logger, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims, err := s.tokens.Parse(credential)
		if err != nil {
			writeError(w, s.logger, http.StatusUnauthorized, "Invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) relay.Identity {
	id, _ := ctx.Value(identityKey{}).(relay.Identity)
	return id
}

// MeHandler returns the caller's profile.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), callerFrom(r.Context()))
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, s.logger, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, user)
}

// UsersHandler lists everyone but the caller along with their presence.
func (s *Server) UsersHandler(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	others := lo.Filter(s.users.All(r.Context()), func(u auth.User, _ int) bool {
		return u.ID != caller
	})
	roster := lo.Map(others, func(u auth.User, _ int) rosterEntry {
		return rosterEntry{User: u, Online: s.registry.Online(u.ID)}
	})
	writeJSON(w, s.logger, http.StatusOK, roster)
}

// MessagesHandler returns the caller's conversation with userId, oldest first.
func (s *Server) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	other, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "Invalid user id")
		return
	}

	messages, err := s.history.Conversation(r.Context(), callerFrom(r.Context()), relay.Identity(other))
	if err != nil {
		s.logger.Error("Could not load conversation", zap.Int64("other", other), zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "Server error")
		return
	}
	if messages == nil {
		messages = []relay.Message{}
	}
	writeJSON(w, s.logger, http.StatusOK, messages)
}
