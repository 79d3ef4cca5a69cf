package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/arabica.social/sanctions/internal/moderation"
)

type identityMap map[string]moderation.Identity

func (m identityMap) GetIdentity(_ context.Context, id string) (*moderation.Identity, error) {
	if id == "explode" {
		return nil, errors.New("store offline")
	}
	i, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

func TestActorMiddleware(t *testing.T) {
	identities := identityMap{"u-mod": {ID: "u-mod", Username: "modmin", PermissionLevel: 4}}

	var got moderation.Identity
	var found bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	wrapped := ActorMiddleware("", identities)(handler)

	t.Run("known actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
		req.Header.Set(DefaultActorHeader, "u-mod")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, found)
		assert.Equal(t, "modmin", got.Username)
		assert.Equal(t, 4, got.PermissionLevel)
	})

	t.Run("no header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, found)
	})

	t.Run("unknown actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
		req.Header.Set(DefaultActorHeader, "u-ghost")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, found)
	})

	t.Run("lookup failure", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
		req.Header.Set(DefaultActorHeader, "explode")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("custom header", func(t *testing.T) {
		custom := ActorMiddleware("X-Staff", identities)(handler)
		req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
		req.Header.Set("X-Staff", "u-mod")
		rec := httptest.NewRecorder()
		custom.ServeHTTP(rec, req)

		assert.True(t, found)
	})
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})
	wrapped := LoggingMiddleware(logger)(handler)

	req := httptest.NewRequest(http.MethodPost, "/admin/moderation", nil)
	req = req.WithContext(ContextWithActor(req.Context(), moderation.Identity{ID: "u-mod", PermissionLevel: 4}))
	req.RemoteAddr = "203.0.113.9:5555"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"actor":"u-mod"`)
	assert.Contains(t, out, `"client_ip":"203.0.113.9"`)
	assert.Contains(t, out, `"bytes_written":15`)
}
