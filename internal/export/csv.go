package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"eeg-backend/internal/models"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// WriteEngagementCSV writes one row per cycle with the engagement coefficients
func WriteEngagementCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"cycle", "timestamp", "coef_min", "coef_max", "coef_avg", "is_focused"}); err != nil {
		return err
	}
	for _, e := range entries {
		r := e.Engagement
		row := []string{
			strconv.Itoa(e.Cycle),
			formatTime(r.Timestamp),
			formatFloat(r.CoefMin),
			formatFloat(r.CoefMax),
			formatFloat(r.CoefAvg),
			strconv.FormatBool(r.IsFocused),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRawCSV writes one row per cycle with the last sample of each channel
func WriteRawCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)

	header := []string{"cycle", "timestamp"}
	for _, ch := range models.Channels {
		header = append(header, strings.ToLower(string(ch)))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		row := []string{strconv.Itoa(e.Cycle), formatTime(e.Raw.Timestamp)}
		for _, v := range e.Raw.Values() {
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSpectraCSV writes the amplitude spectra in long form, one row per
// cycle, channel and frequency bin
func WriteSpectraCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"cycle", "timestamp", "channel", "frequency", "amplitude"}); err != nil {
		return err
	}

	for _, e := range entries {
		cycle := strconv.Itoa(e.Cycle)
		ts := formatTime(e.Engagement.Timestamp)

		for _, ch := range models.Channels {
			spec, ok := e.Spectra[ch]
			if !ok {
				continue
			}
			for i, f := range spec.Frequencies {
				row := []string{cycle, ts, string(ch), formatFloat(f), formatFloat(spec.Amplitudes[i])}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
