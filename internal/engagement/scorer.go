package engagement

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"eeg-backend/internal/models"
	"eeg-backend/internal/spectral"
	"eeg-backend/pkg/config"
)

// ChannelScore is the engagement index of one channel with its band powers
type ChannelScore struct {
	Channel    models.Channel
	Powers     models.BandPowers
	Index      float64
	Degenerate bool // alpha+theta was 0, Index forced to 0
}

// Result is the outcome of scoring one epoch
type Result struct {
	Record     models.EngagementRecord
	Channels   []ChannelScore // canonical channel order
	Degenerate []models.Channel
}

// Scorer reduces per-channel spectra to an engagement record.
// Settings can be swapped at runtime while scoring is in progress.
type Scorer struct {
	settings atomic.Pointer[config.EngagementSettings]
}

// NewScorer creates a scorer with the given bands and threshold
func NewScorer(settings config.EngagementSettings) *Scorer {
	s := &Scorer{}
	s.SetSettings(settings)
	return s
}

// Settings returns the active settings
func (s *Scorer) Settings() config.EngagementSettings {
	return *s.settings.Load()
}

// SetSettings replaces the active settings. Epochs scored afterwards use them.
func (s *Scorer) SetSettings(settings config.EngagementSettings) {
	s.settings.Store(&settings)
}

// Index computes beta / (alpha + theta). The second result is false when the
// denominator is 0, in which case the index is 0.
func Index(p models.BandPowers) (float64, bool) {
	denom := p.Alpha + p.Theta
	if denom <= 0 {
		return 0, false
	}
	return p.Beta / denom, true
}

// Score computes the engagement record for the epoch captured at timestamp.
//
// Degenerate channels are reported but left out of min, max and avg. When no
// channel yields a defined index all three coefficients are 0 and the subject
// is not focused.
func (s *Scorer) Score(timestamp time.Time, spectra map[models.Channel]models.Spectrum) Result {
	settings := s.Settings()

	res := Result{
		Record:   models.EngagementRecord{Timestamp: timestamp},
		Channels: make([]ChannelScore, 0, len(spectra)),
	}

	var (
		sum   float64
		count int
		lo    = math.Inf(1)
		hi    = math.Inf(-1)
	)

	for _, ch := range models.Channels {
		spec, ok := spectra[ch]
		if !ok {
			continue
		}

		powers := spectral.Powers(spec, settings.Theta, settings.Alpha, settings.Beta, settings.Total)
		index, defined := Index(powers)

		res.Channels = append(res.Channels, ChannelScore{
			Channel:    ch,
			Powers:     powers,
			Index:      index,
			Degenerate: !defined,
		})

		if !defined {
			res.Degenerate = append(res.Degenerate, ch)
			continue
		}

		theta, alpha, beta := spectral.Ratios(powers)
		slog.Debug("EngagementScorer: channel scored",
			"channel", ch,
			"index", index,
			"theta_ratio", theta,
			"alpha_ratio", alpha,
			"beta_ratio", beta)

		sum += index
		count++
		lo = math.Min(lo, index)
		hi = math.Max(hi, index)
	}

	if len(res.Degenerate) > 0 {
		slog.Warn("EngagementScorer: degenerate band, alpha+theta is zero; index coerced to 0 and excluded",
			"channels", res.Degenerate,
			"timestamp", timestamp)
	}

	if count > 0 {
		res.Record.CoefMin = lo
		res.Record.CoefMax = hi
		// rounding in sum can push the mean a ulp past the extremes
		res.Record.CoefAvg = math.Max(lo, math.Min(hi, sum/float64(count)))
	}
	res.Record.IsFocused = res.Record.CoefAvg > settings.Threshold

	return res
}
