// Package config provides configuration management for VoxAssist
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	User     UserConfig     `mapstructure:"user"`
	WakeWord WakeWordConfig `mapstructure:"wakeword"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	STT      STTConfig      `mapstructure:"stt"`
	Intent   IntentConfig   `mapstructure:"intent"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Session  SessionConfig  `mapstructure:"session"`
}

// UserConfig identifies the user
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// WakeWordConfig configures the wake-word listener
type WakeWordConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Phrase is hot-reloadable: edits to the config file take effect on
	// the next listening cycle without a restart.
	Phrase   string   `mapstructure:"phrase"`
	Variants []string `mapstructure:"variants"`
}

// AudioConfig configures audio capture and endpointing
type AudioConfig struct {
	InputDevice  string        `mapstructure:"input_device"`
	SampleRate   int           `mapstructure:"sample_rate"`
	Channels     int           `mapstructure:"channels"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	MinDuration  time.Duration `mapstructure:"min_duration"`
	VADThreshold float64       `mapstructure:"vad_threshold"`
	VADSilence   time.Duration `mapstructure:"vad_silence_duration"`
}

// SpeechConfig configures the streaming speech recognizer
type SpeechConfig struct {
	ServerURL string `mapstructure:"server_url"`
	APIKey    string `mapstructure:"api_key"`
	Language  string `mapstructure:"language"`
}

// STTConfig configures the transcription provider
type STTConfig struct {
	ServiceURL string        `mapstructure:"service_url"`
	APIKey     string        `mapstructure:"api_key"`
	Language   string        `mapstructure:"language"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// IntentConfig configures the remote intent classifier
type IntentConfig struct {
	ServiceURL string        `mapstructure:"service_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// DispatchConfig configures confidence gating. Thresholds are
// hot-reloadable per intent.
type DispatchConfig struct {
	DefaultThreshold float64            `mapstructure:"default_threshold"`
	Thresholds       map[string]float64 `mapstructure:"thresholds"`
}

// TTSConfig configures the speech synthesizer
type TTSConfig struct {
	ServiceURL string        `mapstructure:"service_url"`
	APIKey     string        `mapstructure:"api_key"`
	VoiceID    string        `mapstructure:"voice_id"`
	Speed      float64       `mapstructure:"speed"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SessionConfig configures session lifecycle
type SessionConfig struct {
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxExchanges      int           `mapstructure:"max_exchanges"`
	ContextExpiration time.Duration `mapstructure:"context_expiration"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		User: UserConfig{
			ID: "default-user",
		},
		WakeWord: WakeWordConfig{
			Enabled:  true,
			Phrase:   "hey vox",
			Variants: []string{"hey fox", "hey box", "a vox", "hey voice"},
		},
		Audio: AudioConfig{
			InputDevice:  "",
			SampleRate:   16000,
			Channels:     1,
			MaxDuration:  15 * time.Second,
			MinDuration:  300 * time.Millisecond,
			VADThreshold: 0.015,
			VADSilence:   800 * time.Millisecond,
		},
		Speech: SpeechConfig{
			ServerURL: "ws://localhost:8810/listen",
			Language:  "en",
		},
		STT: STTConfig{
			ServiceURL: "http://localhost:8800",
			Language:   "en",
			Timeout:    10 * time.Second,
		},
		Intent: IntentConfig{
			ServiceURL: "http://localhost:8700",
			Timeout:    4 * time.Second,
		},
		Dispatch: DispatchConfig{
			DefaultThreshold: 0.5,
			Thresholds: map[string]float64{
				"general_query": 0.3,
				"navigate":      0.55,
			},
		},
		TTS: TTSConfig{
			ServiceURL: "http://localhost:8900",
			VoiceID:    "nova",
			Speed:      1.0,
			Timeout:    20 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout:       5 * time.Minute,
			MaxExchanges:      10,
			ContextExpiration: 5 * time.Minute,
		},
	}
}

// Manager loads configuration and watches the file for changes. Only a
// small set of fields is applied at runtime (wake phrase, dispatch
// thresholds); everything else needs a restart.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)
}

// Load reads configuration from file and environment and starts watching
// the file for changes.
func Load() (*Manager, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("VOXASSIST")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	m := &Manager{config: cfg}

	viper.OnConfigChange(func(fsnotify.Event) {
		fresh := DefaultConfig()
		if err := viper.Unmarshal(fresh); err != nil {
			return
		}
		m.apply(fresh)
	})
	viper.WatchConfig()

	return m, nil
}

// Get returns the current configuration snapshot.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers a callback fired after a config file change is
// applied. Callbacks receive the fresh snapshot.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

func (m *Manager) apply(fresh *Config) {
	m.mu.Lock()
	m.config = fresh
	callbacks := make([]func(*Config), len(m.onChange))
	copy(callbacks, m.onChange)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(fresh)
	}
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("user", cfg.User)
	viper.Set("wakeword", cfg.WakeWord)
	viper.Set("audio", cfg.Audio)
	viper.Set("speech", cfg.Speech)
	viper.Set("stt", cfg.STT)
	viper.Set("intent", cfg.Intent)
	viper.Set("dispatch", cfg.Dispatch)
	viper.Set("tts", cfg.TTS)
	viper.Set("session", cfg.Session)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".voxassist"), nil
}
