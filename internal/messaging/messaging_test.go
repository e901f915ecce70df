package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, limiter *RateLimiter) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send-whatsapp", NewFunction(limiter, nil).SendWhatsApp)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSend(t *testing.T) {
	c := NewClient(newServer(t, nil).URL, "")
	require.NoError(t, c.Send(context.Background(), "+15550001", "Lesson 1"))
}

func TestSendSetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	require.NoError(t, NewClient(srv.URL, "k").Send(context.Background(), "+1", "x"))
}

func TestSendRejected(t *testing.T) {
	c := NewClient(newServer(t, nil).URL, "")
	err := c.Send(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorContains(t, err, "status 400")
}

func TestSendRateLimited(t *testing.T) {
	c := NewClient(newServer(t, NewRateLimiter(1, 2)).URL, "")
	require.NoError(t, c.Send(context.Background(), "+1", "a"))
	require.NoError(t, c.Send(context.Background(), "+1", "b"))
	err := c.Send(context.Background(), "+1", "c")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorContains(t, err, "429")

	// other destinations have their own bucket
	assert.NoError(t, c.Send(context.Background(), "+2", "a"))
}

func TestSendUnreachable(t *testing.T) {
	err := NewClient("http://127.0.0.1:1", "").Send(context.Background(), "+1", "x")
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.Allow("a")
	rl.Allow("b")
	rl.Cleanup(1)
	assert.Empty(t, rl.limiters)
}
