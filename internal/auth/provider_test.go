package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user", r.URL.Path)

		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id": 42, "name": "somebody"}`))
		case "Bearer broken-token":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL)

	t.Run("valid token", func(t *testing.T) {
		user, err := provider.ValidateToken(context.Background(), "good-token")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, uint64(42), user.UserID)
		assert.Equal(t, "good-token", user.Token)
	})

	t.Run("rejected token", func(t *testing.T) {
		user, err := provider.ValidateToken(context.Background(), "bad-token")
		assert.Nil(t, user)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("provider failure", func(t *testing.T) {
		user, err := provider.ValidateToken(context.Background(), "broken-token")
		assert.Nil(t, user)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("provider unreachable", func(t *testing.T) {
		down := NewHTTPProvider("http://127.0.0.1:1")
		user, err := down.ValidateToken(context.Background(), "good-token")
		assert.Nil(t, user)
		assert.Error(t, err)
	})
}
