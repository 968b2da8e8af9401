package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/pairchat/internal/relay"
)

func newDemoUsers(t *testing.T) *Users {
	t.Helper()
	users := NewUsers(bcrypt.MinCost)
	require.NoError(t, users.SeedDemoUsers(4))
	return users
}

func TestUsers_Authenticate(t *testing.T) {
	req := require.New(t)
	users := newDemoUsers(t)

	user, err := users.Authenticate("user2", "password2")
	req.NoError(err)
	req.Equal(relay.Identity(2), user.ID)
	req.Equal("Demo User 2", user.Name)

	_, err = users.Authenticate("user2", "password1")
	req.ErrorIs(err, ErrInvalidCredentials)

	_, err = users.Authenticate("nobody", "password1")
	req.ErrorIs(err, ErrInvalidCredentials)
}

func TestUsers_Add_Duplicate(t *testing.T) {
	users := newDemoUsers(t)

	require.ErrorIs(t, users.Add(9, "user1", "Again", "pw"), ErrUserExists)
	require.ErrorIs(t, users.Add(1, "fresh", "Again", "pw"), ErrUserExists)
}

func TestUsers_All_Ordered(t *testing.T) {
	req := require.New(t)
	users := newDemoUsers(t)

	all := users.All(context.Background())
	req.Len(all, 4)
	for i, user := range all {
		req.Equal(relay.Identity(i+1), user.ID)
	}

	_, err := users.Get(context.Background(), 99)
	req.ErrorIs(err, ErrUserNotFound)
}

func TestLoginRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     LoginRequest
		wantErr bool
	}{
		{"Valid request", LoginRequest{"user1", "password1"}, false},
		{"Missing username", LoginRequest{"", "password1"}, true},
		{"Missing password", LoginRequest{"user1", ""}, true},
		{"Password too long", LoginRequest{"user1", strings.Repeat("a", 73)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTokens_Round_Trip(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test-secret", time.Hour)

	token, err := tokens.Issue(User{ID: 3, Username: "user3"})
	req.NoError(err)

	claims, err := tokens.Parse(token)
	req.NoError(err)
	req.Equal(relay.Identity(3), claims.UserID)
	req.Equal("user3", claims.Username)
	req.Equal("3", claims.Subject)
}

func TestTokens_Rejects(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test-secret", time.Hour)
	token, err := tokens.Issue(User{ID: 1, Username: "user1"})
	req.NoError(err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other-secret", time.Hour).Parse(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokens("test-secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Parse(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Parse("not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tokens.Parse(unsigned)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerifier(t *testing.T) {
	req := require.New(t)
	users := newDemoUsers(t)
	tokens := NewTokens("test-secret", time.Hour)
	verifier := NewVerifier(tokens, users)
	ctx := context.Background()

	valid, err := tokens.Issue(User{ID: 4, Username: "user4"})
	req.NoError(err)
	identity, err := verifier.Verify(ctx, valid)
	req.NoError(err)
	req.Equal(relay.Identity(4), identity)

	ghost, err := tokens.Issue(User{ID: 77, Username: "ghost"})
	req.NoError(err)
	_, err = verifier.Verify(ctx, ghost)
	req.ErrorIs(err, ErrUserNotFound)

	_, err = verifier.Verify(ctx, "forged")
	req.ErrorIs(err, ErrInvalidToken)
}
