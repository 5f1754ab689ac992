package aggregator

import (
	"math"

	"eeg-backend/internal/models"
)

// QualityConfig holds the limits used to flag bad electrodes
type QualityConfig struct {
	FlatRMS       float64 // RMS below this means the electrode is off or shorted
	ClipAmplitude float64 // |sample| above this means the amplifier saturated
}

// DefaultQualityConfig returns limits for millivolt-scaled EEG
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		FlatRMS:       1e-4,
		ClipAmplitude: 400,
	}
}

// ChannelQuality provides basic per-channel signal metrics
type ChannelQuality struct {
	Channel       models.Channel
	RMS           float64 // RMS after removing the mean
	Mean          float64 // DC offset
	PeakAmplitude float64 // largest absolute sample
	IsFlat        bool
	IsClipping    bool
	SampleCount   int
}

// AnalyzeQuality computes quality metrics for every canonical channel of the epoch
func AnalyzeQuality(epoch *models.Epoch, config QualityConfig) []ChannelQuality {
	out := make([]ChannelQuality, 0, len(models.Channels))
	for _, ch := range models.Channels {
		out = append(out, analyzeChannel(ch, epoch.Samples[ch], config))
	}
	return out
}

func analyzeChannel(ch models.Channel, samples []float64, config QualityConfig) ChannelQuality {
	q := ChannelQuality{
		Channel:     ch,
		SampleCount: len(samples),
	}

	if len(samples) == 0 {
		q.IsFlat = true
		return q
	}

	var sum float64
	for _, v := range samples {
		sum += v
		if a := math.Abs(v); a > q.PeakAmplitude {
			q.PeakAmplitude = a
		}
	}
	q.Mean = sum / float64(len(samples))

	var sumSquares float64
	for _, v := range samples {
		d := v - q.Mean
		sumSquares += d * d
	}
	q.RMS = math.Sqrt(sumSquares / float64(len(samples)))

	q.IsFlat = q.RMS < config.FlatRMS
	q.IsClipping = config.ClipAmplitude > 0 && q.PeakAmplitude >= config.ClipAmplitude

	return q
}
