package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

func submitReq() driven.SubmitRequest {
	return driven.SubmitRequest{
		SessionID:  "s1",
		Seq:        4,
		AudioURL:   "https://objects.example.com/a.webm?sig=1",
		WebhookURL: "https://stitch.example.com/callbacks/transcription?sessionId=s1&seq=4",
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestClient_Submit(t *testing.T) {
	var got runRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/run", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"job-1","status":"IN_QUEUE"}`))
	}))
	defer server.Close()

	c, err := NewClient(Config{URL: server.URL + "/", APIKey: "key"})
	require.NoError(t, err)

	id, err := c.Submit(context.Background(), submitReq())

	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, "https://objects.example.com/a.webm?sig=1", got.Input.AudioURL)
	assert.True(t, got.Input.WordTimestamps)
	assert.Equal(t, DefaultModel, got.Input.Model)
	assert.Equal(t, "s1", got.Input.SessionID)
	assert.Equal(t, 4, got.Input.Seq)
	assert.Contains(t, got.Webhook, "/callbacks/transcription")
}

func TestClient_Submit_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"missing id", http.StatusOK, `{"status":"IN_QUEUE"}`},
		{"error field", http.StatusOK, `{"id":"x","error":"bad input"}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, err := NewClient(Config{URL: server.URL})
			require.NoError(t, err)

			_, err = c.Submit(context.Background(), submitReq())
			assert.Error(t, err)
		})
	}
}

func TestClient_Submit_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := NewClient(Config{URL: server.URL})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), submitReq())
	require.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, c.limiter.Allow())

	// The backoff window makes the next call wait for the context.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Submit(ctx, submitReq())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_Defaults(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{})
	assert.Equal(t, DefaultRateLimit.BurstSize, r.limiter.Burst())
	assert.True(t, r.Allow())
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, retryAfter("5"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
