package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynthesizer(t *testing.T, player Player, handler http.HandlerFunc) *HTTPSynthesizer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewHTTPSynthesizer(&HTTPConfig{
		ServiceURL: server.URL,
		VoiceID:    "nova",
		Speed:      1.0,
		Format:     "wav",
	}, player, zerolog.Nop())
}

func ttsHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tts", r.URL.Path)

		var req synthesizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Text)
		assert.Equal(t, "nova", req.VoiceID)

		w.Write([]byte("fake-wav-bytes"))
	}
}

func TestSpeakPlaysAudio(t *testing.T) {
	var played atomic.Value
	player := func(ctx context.Context, audio []byte, format string) error {
		played.Store(string(audio) + "/" + format)
		return nil
	}
	s := newTestSynthesizer(t, player, ttsHandler(t))

	handle, err := s.Speak(context.Background(), &SpeakRequest{Text: "Playing jazz."})
	require.NoError(t, err)

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("playback did not complete")
	}

	assert.NoError(t, handle.Err())
	assert.Equal(t, "fake-wav-bytes/wav", played.Load())
}

func TestSpeakCancelStopsPlayback(t *testing.T) {
	player := func(ctx context.Context, audio []byte, format string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s := newTestSynthesizer(t, player, ttsHandler(t))

	handle, err := s.Speak(context.Background(), &SpeakRequest{Text: "A long announcement."})
	require.NoError(t, err)

	handle.Cancel()
	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel did not stop playback")
	}
	assert.ErrorIs(t, handle.Err(), context.Canceled)
}

func TestSpeakRejectsOversizedText(t *testing.T) {
	s := newTestSynthesizer(t, nil, ttsHandler(t))

	handle, err := s.Speak(context.Background(), &SpeakRequest{
		Text: strings.Repeat("a", MaxTextLength+1),
	})
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, ErrTextTooLong)
}

func TestSpeakServerError(t *testing.T) {
	s := newTestSynthesizer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	handle, err := s.Speak(context.Background(), &SpeakRequest{Text: "hello"})
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestSpeakUnreachable(t *testing.T) {
	s := NewHTTPSynthesizer(&HTTPConfig{ServiceURL: "http://127.0.0.1:1"}, nil, zerolog.Nop())

	handle, err := s.Speak(context.Background(), &SpeakRequest{Text: "hello"})
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestSpeakNilPlayerDiscards(t *testing.T) {
	s := newTestSynthesizer(t, nil, ttsHandler(t))

	handle, err := s.Speak(context.Background(), &SpeakRequest{Text: "hello"})
	require.NoError(t, err)
	<-handle.Done()
	assert.NoError(t, handle.Err())
}

func TestHealthCheck(t *testing.T) {
	s := newTestSynthesizer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
	})
	assert.NoError(t, s.Health(context.Background()))
}
