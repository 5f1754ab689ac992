package models

import (
	"fmt"
	"strings"
	"time"
)

// Channel identifies one electrode position of the headset
type Channel string

const (
	ChannelF4 Channel = "F4"
	ChannelF3 Channel = "F3"
	ChannelC4 Channel = "C4"
	ChannelC3 Channel = "C3"
	ChannelP4 Channel = "P4"
	ChannelP3 Channel = "P3"
	ChannelO1 Channel = "O1"
	ChannelO2 Channel = "O2"
)

// Channels is the canonical channel order used by the device stream, the raw
// store columns and every export.
var Channels = []Channel{
	ChannelF4, ChannelF3, ChannelC4, ChannelC3,
	ChannelP4, ChannelP3, ChannelO1, ChannelO2,
}

// ParseChannel maps a label such as "f4" or "F4" to a Channel
func ParseChannel(label string) (Channel, error) {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	for _, ch := range Channels {
		if string(ch) == normalized {
			return ch, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", label)
}

// SampleFrame is one chunk of samples pushed by the headset bridge
type SampleFrame struct {
	DeviceID  string
	Timestamp time.Time
	Samples   map[Channel][]float64 // ordered oldest first
}

// Epoch is a frozen multi-channel window handed from the epoch controller to
// the spectral analyzer. It must not be modified after capture.
type Epoch struct {
	Timestamp  time.Time
	SampleRate float64
	Samples    map[Channel][]float64
}

// Len returns the number of samples held for ch
func (e *Epoch) Len(ch Channel) int {
	return len(e.Samples[ch])
}

// MinLen returns the shortest channel length across all canonical channels
func (e *Epoch) MinLen() int {
	shortest := -1
	for _, ch := range Channels {
		n := len(e.Samples[ch])
		if shortest < 0 || n < shortest {
			shortest = n
		}
	}
	if shortest < 0 {
		return 0
	}
	return shortest
}

// TimestampMillis returns the capture time in milliseconds since the Unix epoch
func (e *Epoch) TimestampMillis() int64 {
	return e.Timestamp.UnixMilli()
}

// Spectrum is the one-sided amplitude spectrum of one channel.
// Frequencies and Amplitudes always have the same length.
type Spectrum struct {
	Frequencies []float64 // Hz, strictly increasing from 0
	Amplitudes  []float64 // |FFT| * 2/N
}

// Len returns the number of spectrum bins
func (s Spectrum) Len() int {
	return len(s.Frequencies)
}

// Peak returns the frequency and amplitude of the largest bin
func (s Spectrum) Peak() (float64, float64) {
	var freq, amp float64
	for i, a := range s.Amplitudes {
		if a > amp {
			amp = a
			freq = s.Frequencies[i]
		}
	}
	return freq, amp
}

// Band is a named frequency range in Hz
type Band struct {
	Name string  `json:"name" yaml:"name"`
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// Standard EEG bands used by the engagement index
var (
	BandTheta = Band{Name: "theta", Low: 4, High: 8}
	BandAlpha = Band{Name: "alpha", Low: 8, High: 13}
	BandBeta  = Band{Name: "beta", Low: 13, High: 32}
	BandTotal = Band{Name: "total", Low: 4, High: 32}
)

// BandPowers holds the integrated power of each band for one channel
type BandPowers struct {
	Theta float64
	Alpha float64
	Beta  float64
	Total float64
}
