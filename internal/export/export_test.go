package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeg-backend/internal/models"
)

var baseTime = time.Date(2024, 11, 23, 10, 0, 0, 0, time.UTC)

func testEntry(cycle, n int, rate float64) Entry {
	epoch := &models.Epoch{
		Timestamp:  baseTime.Add(time.Duration(cycle) * 10 * time.Second),
		SampleRate: rate,
		Samples:    make(map[models.Channel][]float64),
	}
	for ci, ch := range models.Channels {
		s := make([]float64, n)
		for i := range s {
			s[i] = float64(ci+1) * math.Sin(2*math.Pi*10*float64(i)/rate)
		}
		epoch.Samples[ch] = s
	}

	spectra := map[models.Channel]models.Spectrum{}
	for _, ch := range models.Channels {
		spectra[ch] = models.Spectrum{Frequencies: []float64{0, 5}, Amplitudes: []float64{0.5, 1.5}}
	}

	return Entry{
		Cycle:      cycle,
		Epoch:      epoch,
		Engagement: models.EngagementRecord{Timestamp: epoch.Timestamp, CoefMin: 0.1, CoefMax: 0.5, CoefAvg: 0.3, IsFocused: true},
		Raw:        models.NewRawRecord(epoch),
		Spectra:    spectra,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator(2)
	acc.Add(testEntry(1, 10, 250))
	acc.Add(testEntry(2, 10, 250))

	entries := acc.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Cycle)
	assert.Equal(t, 2, entries[1].Cycle)
	assert.Equal(t, 2, acc.Len())
}

func TestWriteEngagementCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEngagementCSV(&buf, []Entry{testEntry(1, 4, 250)}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "cycle,timestamp,coef_min,coef_max,coef_avg,is_focused", lines[0])
	assert.Equal(t, "1,2024-11-23T10:00:10.000Z,0.1,0.5,0.3,true", lines[1])
}

func TestWriteSpectraCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSpectraCSV(&buf, []Entry{testEntry(1, 4, 250)}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	// header + 8 channels * 2 bins
	require.Len(t, rows, 1+len(models.Channels)*2)
	assert.Equal(t, []string{"1", "2024-11-23T10:00:10.000Z", "F4", "5", "1.5"}, rows[2])
	assert.Equal(t, "O2", rows[len(rows)-1][2])
}

func TestExporter_WritesAllArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	acc := NewAccumulator(2)
	acc.Add(testEntry(1, 500, 250))
	acc.Add(testEntry(2, 600, 250)) // 2 full records, 100 samples dropped

	x := &Exporter{Dir: dir, EDF: true, DeviceID: "headset-001"}
	require.NoError(t, x.Export(acc))

	eng := readCSV(t, filepath.Join(dir, EngagementFile))
	assert.Len(t, eng, 3)

	raw := readCSV(t, filepath.Join(dir, RawFile))
	require.Len(t, raw, 3)
	assert.Equal(t, []string{"cycle", "timestamp", "f4", "f3", "c4", "c3", "p4", "p3", "o1", "o2"}, raw[0])

	spectra := readCSV(t, filepath.Join(dir, SpectraFile))
	assert.Len(t, spectra, 1+2*len(models.Channels)*2)

	f, err := os.Open(filepath.Join(dir, EDFFile))
	require.NoError(t, err)
	defer f.Close()

	er, err := edf.Open(f)
	require.NoError(t, err)
	sr, err := er.Signal(1)
	require.NoError(t, err)

	samples := make([]float64, 1000)
	n, err := sr.Read(samples)
	require.NoError(t, err)
	require.Equal(t, 1000, n)

	want := acc.Entries()[0].Epoch.Samples[models.ChannelF3]
	for i := 0; i < 500; i++ {
		assert.InDelta(t, want[i], samples[i], 1e-3, "sample %d", i)
	}

	_, err = sr.Read(samples)
	assert.Equal(t, io.EOF, err)
}

func TestExporter_ReportsFailure(t *testing.T) {
	dir := t.TempDir()
	// a directory where a file should go makes that artifact fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, RawFile), 0o755))

	acc := NewAccumulator(1)
	acc.Add(testEntry(1, 10, 250))

	err := (&Exporter{Dir: dir}).Export(acc)
	require.Error(t, err)

	var xerr *ExportError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, RawFile, xerr.Artifact)

	// the other artifacts are still written
	assert.FileExists(t, filepath.Join(dir, EngagementFile))
	assert.FileExists(t, filepath.Join(dir, SpectraFile))
}

func TestWriteEDF_RejectsFractionalRate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.edf"))
	require.NoError(t, err)
	defer f.Close()

	_, err = WriteEDF(f, "dev", []Entry{testEntry(1, 10, 250.5)})
	assert.Error(t, err)

	_, err = WriteEDF(f, "dev", nil)
	assert.Error(t, err)
}
