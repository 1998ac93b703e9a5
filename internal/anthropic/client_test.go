package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respondJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func TestCreateMessage_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-haiku-20240307", req.Model)

		respondJSON(w, Response{
			Model:      req.Model,
			StopReason: "end_turn",
			Content:    []ContentBlock{{Type: "text", Text: "TASK_COMPLETE"}},
			Usage:      Usage{InputTokens: 42, OutputTokens: 7},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, 2)
	resp, err := c.CreateMessage(context.Background(), Request{
		Model:     "claude-3-haiku-20240307",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: "hi"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 42, resp.Usage.InputTokens)
}

func TestCreateMessage_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		respondJSON(w, Response{StopReason: "end_turn"})
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, 3)
	resp, err := c.CreateMessage(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateMessage_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, 2)
	_, err := c.CreateMessage(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestCreateMessage_NoRetryOnAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", srv.URL, 5)
	_, err := c.CreateMessage(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestCreateMessageWithFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "primary" {
			// Not transient, so the client moves straight to the next model.
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		respondJSON(w, Response{Model: req.Model, StopReason: "end_turn"})
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, 0)
	resp, err := c.CreateMessageWithFallback(context.Background(), Request{}, []string{"primary", "secondary"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", resp.Model)
}
