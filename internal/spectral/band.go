package spectral

import (
	"sort"

	"gonum.org/v1/gonum/integrate"

	"eeg-backend/internal/models"
)

// BandPower integrates the squared amplitude of spec over [band.Low, band.High].
//
// Only spectrum points whose frequency lies inside the band (bounds inclusive)
// take part. Fewer than two points give 0. An odd point count uses composite
// Simpson's rule; an even count uses Simpson's rule on all but the last
// interval and the trapezoid rule on that interval, which keeps every weight
// non-negative.
func BandPower(spec models.Spectrum, band models.Band) float64 {
	lo, hi := bandRange(spec.Frequencies, band)
	n := hi - lo
	if n < 2 {
		return 0
	}

	x := spec.Frequencies[lo:hi]
	f := make([]float64, n)
	for i, a := range spec.Amplitudes[lo:hi] {
		f[i] = a * a
	}

	switch {
	case n == 2:
		return integrate.Trapezoidal(x, f)
	case n%2 == 1:
		return integrate.Simpsons(x, f)
	default:
		return integrate.Simpsons(x[:n-1], f[:n-1]) + integrate.Trapezoidal(x[n-2:], f[n-2:])
	}
}

// bandRange returns the half-open index range of frequencies inside band
func bandRange(freqs []float64, band models.Band) (int, int) {
	lo := sort.SearchFloat64s(freqs, band.Low)
	hi := sort.Search(len(freqs), func(i int) bool { return freqs[i] > band.High })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Powers computes the theta, alpha, beta and total band powers of one channel
func Powers(spec models.Spectrum, theta, alpha, beta, total models.Band) models.BandPowers {
	return models.BandPowers{
		Theta: BandPower(spec, theta),
		Alpha: BandPower(spec, alpha),
		Beta:  BandPower(spec, beta),
		Total: BandPower(spec, total),
	}
}

// Ratios returns each band's share of the total band power.
// All ratios are 0 when the total is 0.
func Ratios(p models.BandPowers) (theta, alpha, beta float64) {
	if p.Total <= 0 {
		return 0, 0, 0
	}
	return p.Theta / p.Total, p.Alpha / p.Total, p.Beta / p.Total
}
