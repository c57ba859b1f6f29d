package audio

import (
	"math"
	"sync"
	"time"
)

// VAD implements voice activity detection using RMS energy analysis with a
// smoothing window and a silence hangover, so brief pauses inside an
// utterance do not end it.
type VAD struct {
	config *VADConfig
	mu     sync.RWMutex

	// State
	isActive   bool
	lastActive time.Time

	// Smoothing
	energyHistory []float64
	historyIndex  int
}

// VADConfig holds VAD configuration
type VADConfig struct {
	Threshold       float64       `json:"threshold"`        // Energy threshold (0-1), default 0.01
	SmoothingFrames int           `json:"smoothing_frames"` // Number of frames to smooth, default 5
	MinSpeechMs     int           `json:"min_speech_ms"`    // Minimum speech duration, default 250
	MaxSilence      time.Duration `json:"max_silence"`      // Silence before end of speech, default 800ms
}

// DefaultVADConfig returns sensible defaults
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		Threshold:       0.01, // RMS threshold
		SmoothingFrames: 5,
		MinSpeechMs:     250,
		MaxSilence:      800 * time.Millisecond,
	}
}

// NewVAD creates a new VAD instance
func NewVAD(config *VADConfig) *VAD {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.SmoothingFrames <= 0 {
		config.SmoothingFrames = 5
	}
	if config.Threshold <= 0 {
		config.Threshold = 0.01
	}
	if config.MaxSilence <= 0 {
		config.MaxSilence = 800 * time.Millisecond
	}

	return &VAD{
		config:        config,
		energyHistory: make([]float64, config.SmoothingFrames),
	}
}

// Process analyzes an audio chunk and returns the VAD result
func (v *VAD) Process(audioData []byte, bitDepth int) *VADResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	rms := calculateRMS(audioData, bitDepth)

	// Update smoothing history
	v.energyHistory[v.historyIndex] = rms
	v.historyIndex = (v.historyIndex + 1) % len(v.energyHistory)

	smoothedRMS := v.smoothedRMS()
	isSpeech := smoothedRMS >= v.config.Threshold

	if isSpeech {
		v.isActive = true
		v.lastActive = time.Now()
	} else if v.isActive {
		// Within the silence hangover the segment is still considered speech
		if time.Since(v.lastActive) > v.config.MaxSilence {
			v.isActive = false
		} else {
			isSpeech = true
		}
	}

	// Confidence reflects distance from the threshold
	var confidence float64
	if isSpeech {
		confidence = math.Min(1.0, 0.5+(smoothedRMS-v.config.Threshold)*10)
	} else {
		confidence = math.Max(0.0, 0.5-(v.config.Threshold-smoothedRMS)*10)
	}

	return &VADResult{
		IsSpeech:   isSpeech,
		Confidence: confidence,
		RMS:        smoothedRMS,
	}
}

// calculateRMS computes root mean square energy of PCM samples
func calculateRMS(audioData []byte, bitDepth int) float64 {
	if len(audioData) == 0 {
		return 0
	}

	var sum float64
	var count int

	switch bitDepth {
	case 16:
		// 16-bit signed PCM
		for i := 0; i+1 < len(audioData); i += 2 {
			sample := int16(audioData[i]) | int16(audioData[i+1])<<8
			normalized := float64(sample) / 32768.0
			sum += normalized * normalized
			count++
		}
	case 32:
		// 32-bit float PCM
		for i := 0; i+3 < len(audioData); i += 4 {
			bits := uint32(audioData[i]) | uint32(audioData[i+1])<<8 | uint32(audioData[i+2])<<16 | uint32(audioData[i+3])<<24
			sample := math.Float32frombits(bits)
			sum += float64(sample * sample)
			count++
		}
	default:
		// Assume 8-bit unsigned PCM
		for _, b := range audioData {
			normalized := (float64(b) - 128.0) / 128.0
			sum += normalized * normalized
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return math.Sqrt(sum / float64(count))
}

// smoothedRMS returns the average RMS over the history window
func (v *VAD) smoothedRMS() float64 {
	var sum float64
	for _, e := range v.energyHistory {
		sum += e
	}
	return sum / float64(len(v.energyHistory))
}

// IsActive returns whether speech is currently detected
func (v *VAD) IsActive() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.isActive
}

// Reset clears VAD state
func (v *VAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isActive = false
	v.historyIndex = 0
	for i := range v.energyHistory {
		v.energyHistory[i] = 0
	}
}
