package aggregator

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"eeg-backend/internal/models"
)

// Tone is one sinusoidal component of a synthetic channel
type Tone struct {
	Frequency float64 // Hz
	Amplitude float64
}

// SyntheticConfig describes the generated signal
type SyntheticConfig struct {
	DeviceID   string
	SampleRate float64
	Tones      []Tone
	NoiseSigma float64       // Gaussian noise standard deviation, 0 disables noise
	Seed       int64         // noise seed, fixed for reproducible runs
	Chunk      time.Duration // how much signal each emitted frame covers
}

// DefaultSyntheticConfig returns a resting-state-like mix dominated by alpha
func DefaultSyntheticConfig(deviceID string, sampleRate float64) SyntheticConfig {
	return SyntheticConfig{
		DeviceID:   deviceID,
		SampleRate: sampleRate,
		Tones: []Tone{
			{Frequency: 6, Amplitude: 0.4},
			{Frequency: 10, Amplitude: 1.0},
			{Frequency: 20, Amplitude: 0.3},
		},
		NoiseSigma: 0.05,
		Seed:       1,
		Chunk:      40 * time.Millisecond,
	}
}

// SyntheticSource produces sample frames in place of a real headset.
// Channels share the same tones with a per-channel phase offset.
type SyntheticSource struct {
	config SyntheticConfig
	rng    *rand.Rand
	n      int // next sample index
}

// NewSyntheticSource creates a generator
func NewSyntheticSource(config SyntheticConfig) *SyntheticSource {
	if config.Chunk <= 0 {
		config.Chunk = 40 * time.Millisecond
	}
	return &SyntheticSource{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Next generates the following count samples for every channel
func (s *SyntheticSource) Next(count int) *models.SampleFrame {
	samples := make(map[models.Channel][]float64, len(models.Channels))
	for ci, ch := range models.Channels {
		phase := float64(ci) * math.Pi / 8
		values := make([]float64, count)
		for i := range values {
			t := float64(s.n+i) / s.config.SampleRate
			var v float64
			for _, tone := range s.config.Tones {
				v += tone.Amplitude * math.Sin(2*math.Pi*tone.Frequency*t+phase)
			}
			if s.config.NoiseSigma > 0 {
				v += s.rng.NormFloat64() * s.config.NoiseSigma
			}
			values[i] = v
		}
		samples[ch] = values
	}
	s.n += count

	return &models.SampleFrame{
		DeviceID:  s.config.DeviceID,
		Timestamp: time.Now(),
		Samples:   samples,
	}
}

// chunker spreads a non-integral samples-per-tick rate over ticks so the
// emitted total after k ticks is floor(k * rate).
type chunker struct {
	perTick float64
	ticks   int
	emitted int
}

func (c *chunker) next() int {
	c.ticks++
	// tolerance absorbs rounding in rate * chunk duration
	due := int(math.Floor(float64(c.ticks)*c.perTick + 1e-9))
	n := due - c.emitted
	c.emitted = due
	return n
}

// Start emits one frame per chunk interval until ctx is cancelled. Frame sizes
// vary by one sample when the rate does not divide evenly into chunks.
func (s *SyntheticSource) Start(ctx context.Context, out chan<- *models.SampleFrame) {
	chunks := &chunker{perTick: s.config.SampleRate * s.config.Chunk.Seconds()}

	slog.Info("SyntheticSource: Starting...",
		"device", s.config.DeviceID, "sample_rate", s.config.SampleRate, "samples_per_frame", chunks.perTick)

	ticker := time.NewTicker(s.config.Chunk)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SyntheticSource: Shutting down...")
			return
		case <-ticker.C:
			n := chunks.next()
			if n == 0 {
				continue
			}
			frame := s.Next(n)
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}
