package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&ClientConfig{
		ServerURL: server.URL,
		APIKey:    "test-key",
		Timeout:   2 * time.Second,
	}, zerolog.Nop())
}

func TestAskReturnsAnswer(t *testing.T) {
	var received askRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/answer", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(askResponse{Answer: "It is sunny today."})
	})

	answer, err := client.Ask(context.Background(), "what's the weather", "Previous conversation:", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny today.", answer)
	assert.Equal(t, "what's the weather", received.Question)
	assert.Equal(t, "Previous conversation:", received.Context)
	assert.Equal(t, "user-1", received.UserID)
}

func TestAskEmptyAnswer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(askResponse{Answer: "   "})
	})

	_, err := client.Ask(context.Background(), "hello", "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAskServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.Ask(context.Background(), "hello", "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAskUnreachable(t *testing.T) {
	client := NewClient(&ClientConfig{
		ServerURL: "http://127.0.0.1:1",
		Timeout:   500 * time.Millisecond,
	}, zerolog.Nop())

	_, err := client.Ask(context.Background(), "hello", "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAskStreamAccumulatesDeltas(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/answer/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: It is \n\n")
		fmt.Fprint(w, "event: delta\ndata: sunny.\n\n")
		fmt.Fprint(w, "event: done\ndata: \n\n")
	})

	var deltas []string
	answer, err := client.AskStream(context.Background(), "weather?", "", "user-1", func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", answer)
	assert.Equal(t, []string{"It is ", "sunny."}, deltas)
}

func TestAskStreamErrorEvent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: partial\n\n")
		fmt.Fprint(w, "event: error\ndata: model overloaded\n\n")
	})

	answer, err := client.AskStream(context.Background(), "weather?", "", "", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "partial", answer)
}

func TestAskStreamEmptyStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	})

	_, err := client.AskStream(context.Background(), "weather?", "", "", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAssistantHealth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	assert.NoError(t, client.Health(context.Background()))
	assert.Equal(t, "assistant", client.Name())
}
