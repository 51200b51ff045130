package httpfn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

func TestNew_RequiresURL(t *testing.T) {
	_, err := NewSummarizer(Config{})
	assert.Error(t, err)
	_, err = NewFinalizer(Config{})
	assert.Error(t, err)
}

func TestSummarizer_Summarize(t *testing.T) {
	var got driven.SummarizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"summary":"ok"}`))
	}))
	defer server.Close()

	s, err := NewSummarizer(Config{URL: server.URL, APIKey: "secret"})
	require.NoError(t, err)

	out, err := s.Summarize(context.Background(), driven.SummarizeRequest{
		SessionID:    "s1",
		SegmentIndex: 3,
		InputKey:     "sessions/s1/segments/segment-3-input.txt",
		Text:         "hello there",
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"ok"}`, string(out))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 3, got.SegmentIndex)
	assert.Equal(t, "hello there", got.Text)
}

func TestSummarizer_NoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	s, err := NewSummarizer(Config{URL: server.URL})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), driven.SummarizeRequest{Text: "x"})
	assert.NoError(t, err)
}

func TestFinalizer_Finalize(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"note_id":42}`))
	}))
	defer server.Close()

	f, err := NewFinalizer(Config{URL: server.URL})
	require.NoError(t, err)

	patient := int64(7)
	out, err := f.Finalize(context.Background(), driven.FinalizeRequest{
		SessionID:   "s1",
		BusinessIDs: domain.BusinessIDs{PatientID: &patient},
		SummaryKey:  "sessions/s1/final/summary.json",
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"note_id":42}`, string(out))
	assert.Equal(t, "s1", raw["session_id"])
	assert.Equal(t, "sessions/s1/final/summary.json", raw["summary_key"])
	ids, ok := raw["business_ids"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), ids["patient_id"])
	assert.NotContains(t, ids, "therapist_id")
}

func TestInvoke_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, "upstream down"},
		{"client error", http.StatusBadRequest, `{"error":"bad"}`},
		{"empty body", http.StatusOK, "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f, err := NewFinalizer(Config{URL: server.URL})
			require.NoError(t, err)

			_, err = f.Finalize(context.Background(), driven.FinalizeRequest{SessionID: "s1"})
			assert.Error(t, err)
		})
	}
}

func TestInvoke_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	s, err := NewSummarizer(Config{URL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Summarize(ctx, driven.SummarizeRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
