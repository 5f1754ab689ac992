package spectral

import (
	"errors"
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"eeg-backend/internal/models"
)

// ErrInsufficientSamples is returned when a channel holds too few samples for a transform
var ErrInsufficientSamples = errors.New("insufficient samples for spectral analysis")

// MinSamples is the shortest channel the analyzer accepts
const MinSamples = 2

// Analyze computes the one-sided amplitude spectrum of every canonical channel
// of the epoch. Amplitudes are |X[k]|*2/N for k in [0, N/2) and bin k sits at
// k*rate/N Hz.
func Analyze(epoch *models.Epoch) (map[models.Channel]models.Spectrum, error) {
	if epoch == nil {
		return nil, fmt.Errorf("analyze: %w: nil epoch", ErrInsufficientSamples)
	}
	if epoch.SampleRate <= 0 {
		return nil, fmt.Errorf("analyze: invalid sample rate %v", epoch.SampleRate)
	}

	out := make(map[models.Channel]models.Spectrum, len(models.Channels))

	// FFT plans are reusable for equal lengths, which is the common case.
	plans := make(map[int]*fourier.FFT)

	for _, ch := range models.Channels {
		samples := epoch.Samples[ch]
		n := len(samples)
		if n < MinSamples {
			return nil, fmt.Errorf("analyze %s: %w: have %d, need %d", ch, ErrInsufficientSamples, n, MinSamples)
		}

		plan, ok := plans[n]
		if !ok {
			plan = fourier.NewFFT(n)
			plans[n] = plan
		}
		out[ch] = amplitudeSpectrum(plan, samples, epoch.SampleRate)
	}

	return out, nil
}

// AnalyzeChannel computes the spectrum of a single sample sequence
func AnalyzeChannel(samples []float64, sampleRate float64) (models.Spectrum, error) {
	if len(samples) < MinSamples {
		return models.Spectrum{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(samples), MinSamples)
	}
	return amplitudeSpectrum(fourier.NewFFT(len(samples)), samples, sampleRate), nil
}

func amplitudeSpectrum(plan *fourier.FFT, samples []float64, sampleRate float64) models.Spectrum {
	n := len(samples)
	coeffs := plan.Coefficients(nil, samples)

	bins := n / 2
	spec := models.Spectrum{
		Frequencies: make([]float64, bins),
		Amplitudes:  make([]float64, bins),
	}

	norm := 2 / float64(n)
	for k := 0; k < bins; k++ {
		spec.Frequencies[k] = float64(k) * sampleRate / float64(n)
		spec.Amplitudes[k] = cmplx.Abs(coeffs[k]) * norm
	}
	return spec
}
