package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:    srv.URL,
		Token:      "test-token",
		Timeout:    5 * time.Second,
		HTTPClient: srv.Client(),
	})
}

func gistJSON(id, description, revision, content string) map[string]any {
	return map[string]any{
		"id":          id,
		"description": description,
		"files":       map[string]any{"f.py": map[string]any{"content": content}},
		"history":     []map[string]any{{"version": revision}},
		"updated_at":  "2026-08-25T12:00:00Z",
	}
}

func TestCreate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/gists", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, false, payload["public"])
		assert.Equal(t, "desc", payload["description"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(gistJSON("g1", "desc", "rev1", "print(1)"))
	}))

	id, rev, err := c.Create(context.Background(), "f.py", "print(1)", "desc", true)
	require.NoError(t, err)
	assert.Equal(t, "g1", id)
	assert.Equal(t, "rev1", rev)
}

func TestGet(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gists/g1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(gistJSON("g1", "desc", "rev2", "body"))
	}))

	doc, err := c.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "body", doc.Content)
	assert.Equal(t, "rev2", doc.Revision)
	assert.Equal(t, "desc", doc.Description)
}

func TestGetNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthenticationFailed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Get(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestUpdateSendsPrecondition(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "rev1", r.Header.Get("If-Match"))
		_ = json.NewEncoder(w).Encode(gistJSON("g1", "desc", "rev2", "new"))
	}))

	rev, err := c.Update(context.Background(), "g1", "f.py", "new", "rev1")
	require.NoError(t, err)
	assert.Equal(t, "rev2", rev)
}

func TestUpdateRevisionMismatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))

	_, err := c.Update(context.Background(), "g1", "f.py", "new", "stale")
	assert.ErrorIs(t, err, ErrRevisionMismatch)
}

func TestDelete(t *testing.T) {
	deleted := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.Delete(context.Background(), "g1"))
	assert.True(t, deleted)
}

func TestListOwnedPaginates(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var out []map[string]any
		switch page {
		case "1":
			for i := 0; i < listPageSize; i++ {
				out = append(out, gistJSON(fmt.Sprintf("g%d", i), "d", "r", ""))
			}
		default:
			out = append(out, gistJSON("last", "d", "r", ""))
		}
		_ = json.NewEncoder(w).Encode(out)
	}))

	docs, err := c.ListOwned(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, listPageSize+1)
	assert.Equal(t, "last", docs[listPageSize].ID)
}

func TestServerErrorRetriedThenSurfaced(t *testing.T) {
	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Get(context.Background(), "g1")
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, maxAttempts, attempts)
}

func TestTransientErrorRecovered(t *testing.T) {
	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(gistJSON("g1", "d", "rev", "x"))
	}))

	doc, err := c.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "rev", doc.Revision)
	assert.Equal(t, 2, attempts)
}

func TestRateLimited(t *testing.T) {
	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(gistJSON("g1", "d", "rev", "x"))
	}))

	_, err := c.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestAuthErrorNotRetried(t *testing.T) {
	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Get(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, 1, attempts)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&TransportError{Op: "get", Err: context.DeadlineExceeded}))
	assert.True(t, Retryable(&RateLimitedError{Op: "get"}))
	assert.False(t, Retryable(ErrAuthenticationFailed))
	assert.False(t, Retryable(ErrNotFound))
	assert.False(t, Retryable(ErrRevisionMismatch))
}
