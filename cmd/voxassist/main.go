// Command voxassist runs the voice-command pipeline: wake-word detection,
// bounded capture, transcription, two-stage intent classification,
// confidence-gated dispatch, and spoken responses.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/voxassist/internal/actions"
	"github.com/normanking/voxassist/internal/assistant"
	"github.com/normanking/voxassist/internal/audio"
	"github.com/normanking/voxassist/internal/bus"
	"github.com/normanking/voxassist/internal/config"
	"github.com/normanking/voxassist/internal/dispatch"
	"github.com/normanking/voxassist/internal/health"
	"github.com/normanking/voxassist/internal/intent"
	"github.com/normanking/voxassist/internal/logging"
	"github.com/normanking/voxassist/internal/speech"
	"github.com/normanking/voxassist/internal/stt"
	"github.com/normanking/voxassist/internal/tts"
	"github.com/normanking/voxassist/internal/voice"
	"github.com/normanking/voxassist/internal/wakeword"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voxassist: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := logging.New(nil)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	zlog := logger.Zerolog()
	mainLog := logger.Component("main")

	configMgr, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := configMgr.Get()

	events := bus.NewEventBus()

	// Pipeline events feed the in-memory log history, so recent activity is
	// inspectable without grepping the log file.
	events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeStateChanged, bus.EventTypeCycleStarted, bus.EventTypeCycleDone,
		bus.EventTypeCancelled, bus.EventTypeWakeTriggered,
		bus.EventTypeCaptureStarted, bus.EventTypeCaptureDone, bus.EventTypeCaptureEmpty,
		bus.EventTypeTranscript, bus.EventTypeTranscriptFailed,
		bus.EventTypeClassified, bus.EventTypeFallbackUsed, bus.EventTypeSchemaRejected,
		bus.EventTypeDispatched, bus.EventTypeLowConfidence, bus.EventTypeMissingEntity,
		bus.EventTypeSpeakingStarted, bus.EventTypeSpeakingStopped,
	}, func(e bus.Event) {
		logger.Debug("pipeline", string(e.Type), e.Data)
	})

	// Audio capture from the gateway, with local RMS endpointing.
	captureCfg := &audio.CaptureConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		BitDepth:    16,
		MaxDuration: cfg.Audio.MaxDuration,
		MinDuration: cfg.Audio.MinDuration,
		VAD: &audio.VADConfig{
			Threshold:  cfg.Audio.VADThreshold,
			MaxSilence: cfg.Audio.VADSilence,
		},
	}
	sourceCfg := audio.DefaultWSSourceConfig()
	sourceCfg.SampleRate = cfg.Audio.SampleRate
	sourceCfg.Channels = cfg.Audio.Channels
	capturer := audio.NewCapturer(captureCfg, func() (audio.Source, error) {
		return audio.NewWSSource(sourceCfg, zlog)
	}, zlog)

	transcriber := stt.NewHTTPProvider(&stt.HTTPConfig{
		ServiceURL: cfg.STT.ServiceURL,
		APIKey:     cfg.STT.APIKey,
		Timeout:    cfg.STT.Timeout,
		Language:   cfg.STT.Language,
	}, zlog)

	remote := intent.NewRemoteClassifier(&intent.RemoteConfig{
		ServiceURL: cfg.Intent.ServiceURL,
		APIKey:     cfg.Intent.APIKey,
		Timeout:    cfg.Intent.Timeout,
	}, zlog)
	classifier := intent.NewClassifier(remote, zlog)
	classifier.SetEvents(events)

	dispatcher := dispatch.NewDispatcher(&dispatch.Config{
		DefaultThreshold: cfg.Dispatch.DefaultThreshold,
		Thresholds:       intentThresholds(cfg.Dispatch.Thresholds),
	}, zlog)
	dispatcher.SetEvents(events)

	synthesizer := tts.NewHTTPSynthesizer(&tts.HTTPConfig{
		ServiceURL: cfg.TTS.ServiceURL,
		APIKey:     cfg.TTS.APIKey,
		VoiceID:    cfg.TTS.VoiceID,
		Speed:      cfg.TTS.Speed,
		Format:     "wav",
		Timeout:    cfg.TTS.Timeout,
	}, gatewayPlayer(sourceCfg.GatewayURL), zlog)

	session := voice.NewSession(cfg.User.ID, voice.Deps{
		Capturer:    capturer,
		Transcriber: transcriber,
		Classifier:  classifier,
		Dispatcher:  dispatcher,
		Synthesizer: synthesizer,
		Events:      events,
	}, &voice.Config{
		WakeWordEnabled:   cfg.WakeWord.Enabled,
		Language:          cfg.STT.Language,
		TranscribeTimeout: cfg.STT.Timeout,
		SpeakTimeout:      cfg.TTS.Timeout,
		IdleTimeout:       cfg.Session.IdleTimeout,
		History: voice.HistoryConfig{
			MaxExchanges:      cfg.Session.MaxExchanges,
			InactivityTimeout: cfg.Session.ContextExpiration,
		},
	}, zlog)

	assistantClient := assistant.NewClient(nil, zlog)
	handlers := actions.NewSet(assistantClient, session.History(), zlog)
	handlers.RegisterAll(dispatcher)
	if err := dispatcher.Validate(); err != nil {
		return fmt.Errorf("handler registry incomplete: %w", err)
	}

	listener := wakeword.NewListener(&wakeword.Config{
		Phrase:   cfg.WakeWord.Phrase,
		Variants: cfg.WakeWord.Variants,
	}, session.HandleTrigger, zlog)
	session.SetOnListening(listener.Arm)

	// Hot reload: wake phrase and thresholds apply without a restart.
	configMgr.OnChange(func(fresh *config.Config) {
		listener.SetPhrase(fresh.WakeWord.Phrase, fresh.WakeWord.Variants)
		dispatcher.SetThresholds(intentThresholds(fresh.Dispatch.Thresholds))
		mainLog.Info().Msg("Configuration reloaded")
	})

	monitor := health.NewMonitor(nil, zlog, transcriber, remote, synthesizer, assistantClient)
	monitor.SetOnUpdate(func(reports []health.Report) {
		for _, r := range reports {
			if r.Status == health.StatusOffline {
				logger.Warn(r.Name, "Service offline", map[string]interface{}{"error": r.LastError})
			}
		}
	})
	monitor.Start()
	defer monitor.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session.Start()
	defer session.Close()

	go runListener(ctx, cfg, listener, session, zlog)

	mainLog.Info().Str("wake_phrase", cfg.WakeWord.Phrase).Str("log_file", logger.GetLogPath()).Msg("VoxAssist ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	var errCount int
	for _, entry := range logger.GetHistory(0) {
		if entry.Level == "error" {
			errCount++
		}
	}
	mainLog.Info().Str("signal", sig.String()).Int("errors_this_run", errCount).Msg("Shutting down")
	return nil
}

// runListener keeps the wake-word loop alive. Transient recognizer failures
// reconnect with backoff; terminal capability failures park the session in
// its error state and stop the loop.
func runListener(ctx context.Context, cfg *config.Config, listener *wakeword.Listener, session *voice.Session, zlog zerolog.Logger) {
	backoff := time.Second
	for ctx.Err() == nil {
		recognizer := speech.NewWSRecognizer(&speech.WSConfig{
			Endpoint:       cfg.Speech.ServerURL,
			APIKey:         cfg.Speech.APIKey,
			Language:       cfg.Speech.Language,
			SampleRate:     cfg.Audio.SampleRate,
			Encoding:       "linear16",
			InterimResults: true,
			DialTimeout:    10 * time.Second,
		}, zlog)

		err := listener.Run(ctx, recognizer)
		_ = recognizer.Close()

		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, speech.ErrUnsupported) || errors.Is(err, speech.ErrPermissionDenied) {
			session.HandleSourceFailure(err)
			return
		}

		zlog.Warn().Err(err).Dur("backoff", backoff).Msg("Recognition stream failed, reconnecting")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// gatewayPlayer plays synthesized audio through the audio gateway, which
// owns the speakers the same way it owns the microphone.
func gatewayPlayer(gatewayWSURL string) tts.Player {
	playURL := httpFromWS(gatewayWSURL) + "/play"
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, audioData []byte, format string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, playURL, bytes.NewReader(audioData))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "audio/"+format)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("playback failed (status %d)", resp.StatusCode)
		}
		return nil
	}
}

// httpFromWS rewrites a ws:// gateway URL to its http:// root, dropping
// the stream path.
func httpFromWS(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = ""
	return u.String()
}

func intentThresholds(raw map[string]float64) map[intent.Intent]float64 {
	out := make(map[intent.Intent]float64, len(raw))
	for name, threshold := range raw {
		out[intent.Intent(name)] = threshold
	}
	return out
}
