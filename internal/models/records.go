package models

import "time"

// EngagementRecord is the per-epoch engagement score row
type EngagementRecord struct {
	Timestamp time.Time `json:"timestamp" ch:"timestamp"`
	CoefMin   float64   `json:"coef_min" ch:"coef_min"`
	CoefMax   float64   `json:"coef_max" ch:"coef_max"`
	CoefAvg   float64   `json:"coef_avg" ch:"coef_avg"`
	IsFocused bool      `json:"is_focused" ch:"is_focused"`
}

// RawRecord holds the last sample of every channel of an epoch
type RawRecord struct {
	Timestamp time.Time `json:"timestamp" ch:"timestamp"`
	F4        float64   `json:"f4" ch:"f4"`
	F3        float64   `json:"f3" ch:"f3"`
	C4        float64   `json:"c4" ch:"c4"`
	C3        float64   `json:"c3" ch:"c3"`
	P4        float64   `json:"p4" ch:"p4"`
	P3        float64   `json:"p3" ch:"p3"`
	O1        float64   `json:"o1" ch:"o1"`
	O2        float64   `json:"o2" ch:"o2"`
}

// NewRawRecord builds the raw row for an epoch from the final sample of each
// channel. Channels without samples are recorded as 0.
func NewRawRecord(epoch *Epoch) RawRecord {
	last := func(ch Channel) float64 {
		s := epoch.Samples[ch]
		if len(s) == 0 {
			return 0
		}
		return s[len(s)-1]
	}

	return RawRecord{
		Timestamp: epoch.Timestamp,
		F4:        last(ChannelF4),
		F3:        last(ChannelF3),
		C4:        last(ChannelC4),
		C3:        last(ChannelC3),
		P4:        last(ChannelP4),
		P3:        last(ChannelP3),
		O1:        last(ChannelO1),
		O2:        last(ChannelO2),
	}
}

// Values returns the channel values in canonical channel order
func (r RawRecord) Values() []float64 {
	return []float64{r.F4, r.F3, r.C4, r.C3, r.P4, r.P3, r.O1, r.O2}
}

// PersistResult carries the identifiers assigned by the store
type PersistResult struct {
	EngagementID string
	RawID        string
}

// EngagementMessage is the live score published to MQTT after every epoch
type EngagementMessage struct {
	DeviceID string `json:"device_id"`
	Cycle    int    `json:"cycle"`
	EngagementRecord
}
