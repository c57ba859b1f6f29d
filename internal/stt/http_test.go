package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *HTTPProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewHTTPProvider(&HTTPConfig{
		ServiceURL: server.URL,
		APIKey:     "test-key",
		Language:   "en",
	}, zerolog.Nop())
}

func validRequest() *Request {
	return &Request{
		Audio:      make([]byte, 3200),
		Format:     "pcm",
		SampleRate: 16000,
		Channels:   1,
		Language:   "en",
	}
}

func TestTranscribeSuccess(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stt", r.URL.Path)
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		assert.Equal(t, "16000", r.URL.Query().Get("sample_rate"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		file, _, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()

		json.NewEncoder(w).Encode(map[string]any{
			"text":       "play some jazz",
			"language":   "en",
			"confidence": 0.87,
		})
	})

	resp, err := p.Transcribe(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "play some jazz", resp.Text)
	assert.Equal(t, 0.87, resp.Confidence)
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	called := false
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := validRequest()
	req.Audio = nil
	resp, err := p.Transcribe(context.Background(), req)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrAudioEmpty)
	assert.False(t, called, "provider must not be called with empty audio")
}

func TestTranscribeRejectsOversizedAudio(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	req := validRequest()
	req.Audio = make([]byte, MaxAudioBytes+1)
	resp, err := p.Transcribe(context.Background(), req)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrAudioTooLarge)
}

func TestTranscribeServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	resp, err := p.Transcribe(context.Background(), validRequest())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestTranscribeUnreachable(t *testing.T) {
	p := NewHTTPProvider(&HTTPConfig{ServiceURL: "http://127.0.0.1:1"}, zerolog.Nop())

	resp, err := p.Transcribe(context.Background(), validRequest())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestTranscribeDefaultLanguage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		json.NewEncoder(w).Encode(map[string]any{"text": "hello"})
	})

	req := validRequest()
	req.Language = ""
	resp, err := p.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
}

func TestHealth(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
	})
	assert.NoError(t, p.Health(context.Background()))

	down := NewHTTPProvider(&HTTPConfig{ServiceURL: "http://127.0.0.1:1"}, zerolog.Nop())
	assert.Error(t, down.Health(context.Background()))
}
