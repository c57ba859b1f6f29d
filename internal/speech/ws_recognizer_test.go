package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// wsEndpoint serves handler over a test WebSocket server and returns its
// ws:// URL.
func wsEndpoint(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testWSConfig(endpoint string) *WSConfig {
	return &WSConfig{
		Endpoint:       endpoint,
		Language:       "en",
		SampleRate:     16000,
		Encoding:       "linear16",
		InterimResults: true,
		DialTimeout:    2 * time.Second,
	}
}

func TestFragmentsDeliversResults(t *testing.T) {
	endpoint := wsEndpoint(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{
			"type":       "result",
			"transcript": "hey",
			"confidence": 0.6,
			"is_final":   false,
		})
		conn.WriteJSON(map[string]any{
			"type":       "result",
			"transcript": "hey vox",
			"confidence": 0.9,
			"is_final":   true,
		})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	r := NewWSRecognizer(testWSConfig(endpoint), zerolog.Nop())
	defer r.Close()

	fragments, err := r.Fragments(context.Background())
	require.NoError(t, err)

	var got []Fragment
	for f := range fragments {
		got = append(got, f)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "hey", got[0].Text)
	assert.False(t, got[0].IsFinal)
	assert.Equal(t, "hey vox", got[1].Text)
	assert.True(t, got[1].IsFinal)
	assert.Equal(t, 0.9, got[1].Confidence)
}

func TestFragmentsSkipsEmptyAndMalformedFrames(t *testing.T) {
	endpoint := wsEndpoint(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(map[string]any{"type": "result", "transcript": ""})
		conn.WriteJSON(map[string]any{"type": "error", "message": "upstream hiccup"})
		conn.WriteJSON(map[string]any{"type": "result", "transcript": "hello", "is_final": true})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	r := NewWSRecognizer(testWSConfig(endpoint), zerolog.Nop())
	defer r.Close()

	fragments, err := r.Fragments(context.Background())
	require.NoError(t, err)

	var got []Fragment
	for f := range fragments {
		got = append(got, f)
	}

	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Text)
}

func TestFragmentsPermissionDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	r := NewWSRecognizer(testWSConfig("ws"+strings.TrimPrefix(server.URL, "http")), zerolog.Nop())

	fragments, err := r.Fragments(context.Background())
	assert.Nil(t, fragments)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFragmentsUnsupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	r := NewWSRecognizer(testWSConfig("ws"+strings.TrimPrefix(server.URL, "http")), zerolog.Nop())

	fragments, err := r.Fragments(context.Background())
	assert.Nil(t, fragments)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSendAudioRequiresConnection(t *testing.T) {
	r := NewWSRecognizer(DefaultWSConfig(), zerolog.Nop())
	assert.Error(t, r.SendAudio([]byte{1, 2, 3}))
}

func TestCloseIdempotent(t *testing.T) {
	r := NewWSRecognizer(DefaultWSConfig(), zerolog.Nop())
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func TestQueryParameters(t *testing.T) {
	sawQuery := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawQuery <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(server.Close)

	r := NewWSRecognizer(testWSConfig("ws"+strings.TrimPrefix(server.URL, "http")), zerolog.Nop())
	defer r.Close()

	fragments, err := r.Fragments(context.Background())
	require.NoError(t, err)
	for range fragments {
	}

	query := <-sawQuery
	assert.Contains(t, query, "language=en")
	assert.Contains(t, query, "sample_rate=16000")
	assert.Contains(t, query, "interim_results=true")
}
