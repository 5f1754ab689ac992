package export

import (
	"sync"

	"eeg-backend/internal/models"
)

// Entry is everything a completed cycle contributes to the exports
type Entry struct {
	Cycle      int
	Epoch      *models.Epoch
	Engagement models.EngagementRecord
	Raw        models.RawRecord
	Spectra    map[models.Channel]models.Spectrum
}

// Accumulator collects cycle results for one run. It is created when the run
// starts and written out once when the run ends.
type Accumulator struct {
	mu      sync.Mutex
	entries []Entry
}

// NewAccumulator creates an empty accumulator sized for the expected cycle count
func NewAccumulator(expected int) *Accumulator {
	if expected < 0 {
		expected = 0
	}
	return &Accumulator{entries: make([]Entry, 0, expected)}
}

// Add appends one cycle's results
func (a *Accumulator) Add(e Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

// Len returns the number of collected cycles
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Entries returns the collected cycles in insertion order
func (a *Accumulator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Entry(nil), a.entries...)
}
