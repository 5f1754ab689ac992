package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/OpenPSG/edf"

	"eeg-backend/internal/models"
)

const (
	edfDigitalMin = -32768
	edfDigitalMax = 32767
	// maximum data record size in bytes recommended by the EDF standard
	edfMaxRecordBytes = 61440
)

// WriteEDF writes the epochs of entries as one EDF recording with one second
// data records. Epochs are concatenated in cycle order; samples that do not
// fill a whole data record at the end of an epoch are dropped. Returns the
// number of data records written.
func WriteEDF(w io.WriteSeeker, deviceID string, entries []Entry) (int, error) {
	epochs := make([]*models.Epoch, 0, len(entries))
	for _, e := range entries {
		if e.Epoch != nil {
			epochs = append(epochs, e.Epoch)
		}
	}
	if len(epochs) == 0 {
		return 0, errors.New("no epochs to write")
	}

	rate := epochs[0].SampleRate
	perRecord := int(rate)
	if perRecord <= 0 || float64(perRecord) != rate {
		return 0, fmt.Errorf("EDF needs an integral sample rate, got %v", rate)
	}
	if perRecord*len(models.Channels)*2 > edfMaxRecordBytes {
		return 0, fmt.Errorf("sample rate %v exceeds the EDF data record limit", rate)
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          deviceID,
		RecordingID:        "engagement session",
		StartTime:          epochs[0].Timestamp,
		DataRecordDuration: time.Second,
		SignalCount:        len(models.Channels),
		Signals:            make([]edf.Signal, len(models.Channels)),
	}
	for i, ch := range models.Channels {
		lo, hi := physicalRange(epochs, ch)
		hdr.Signals[i] = edf.Signal{
			Label:             "EEG " + string(ch),
			TransducerType:    "EEG electrode",
			PhysicalDimension: "mV",
			PhysicalMin:       lo,
			PhysicalMax:       hi,
			DigitalMin:        edfDigitalMin,
			DigitalMax:        edfDigitalMax,
			SamplesPerRecord:  perRecord,
		}
	}

	ew, err := edf.Create(w, hdr)
	if err != nil {
		return 0, fmt.Errorf("create EDF: %w", err)
	}

	records := 0
	for _, epoch := range epochs {
		if epoch.SampleRate != rate {
			continue
		}
		full := epoch.MinLen() / perRecord
		for r := 0; r < full; r++ {
			signals := make([][]float64, len(models.Channels))
			for i, ch := range models.Channels {
				signals[i] = epoch.Samples[ch][r*perRecord : (r+1)*perRecord]
			}
			if err := ew.WriteRecord(signals); err != nil {
				return records, fmt.Errorf("write EDF record: %w", err)
			}
			records++
		}
	}

	if err := ew.Close(); err != nil {
		return records, fmt.Errorf("finalize EDF: %w", err)
	}
	return records, nil
}

// physicalRange returns the sample range of ch across all epochs, widened so
// it is never empty
func physicalRange(epochs []*models.Epoch, ch models.Channel) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, e := range epochs {
		for _, v := range e.Samples[ch] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return -1, 1
	}
	if hi-lo < 1e-6 {
		lo, hi = lo-1, hi+1
	}
	// the header stores two decimals, round outward so samples stay in range
	return math.Floor(lo*100) / 100, math.Ceil(hi*100) / 100
}
