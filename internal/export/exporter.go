package export

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Artifact file names written into the export directory
const (
	EngagementFile = "engagement.csv"
	RawFile        = "raw.csv"
	SpectraFile    = "spectra.csv"
	EDFFile        = "session.edf"
)

// ExportError reports a failed artifact. Data already persisted is unaffected.
type ExportError struct {
	Artifact string
	Err      error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Artifact, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Exporter writes the end-of-run artifacts
type Exporter struct {
	Dir      string
	EDF      bool
	DeviceID string
}

// Export writes every artifact for the accumulated run. Each artifact is
// attempted even when an earlier one failed; the returned error joins one
// ExportError per failed artifact.
func (x *Exporter) Export(acc *Accumulator) error {
	entries := acc.Entries()

	if err := os.MkdirAll(x.Dir, 0o755); err != nil {
		return &ExportError{Artifact: x.Dir, Err: err}
	}

	var errs []error
	write := func(name string, fn func(w io.Writer) error) {
		if err := x.writeFile(name, fn); err != nil {
			errs = append(errs, &ExportError{Artifact: name, Err: err})
		}
	}

	write(EngagementFile, func(w io.Writer) error { return WriteEngagementCSV(w, entries) })
	write(RawFile, func(w io.Writer) error { return WriteRawCSV(w, entries) })
	write(SpectraFile, func(w io.Writer) error { return WriteSpectraCSV(w, entries) })

	if x.EDF && len(entries) > 0 {
		if err := x.writeEDF(entries); err != nil {
			errs = append(errs, &ExportError{Artifact: EDFFile, Err: err})
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	slog.Info("Exporter: run exported", "dir", x.Dir, "cycles", len(entries), "edf", x.EDF)
	return nil
}

func (x *Exporter) writeFile(name string, fn func(w io.Writer) error) error {
	f, err := os.Create(filepath.Join(x.Dir, name))
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (x *Exporter) writeEDF(entries []Entry) error {
	f, err := os.Create(filepath.Join(x.Dir, EDFFile))
	if err != nil {
		return err
	}

	records, err := WriteEDF(f, x.DeviceID, entries)
	if err != nil {
		f.Close()
		return err
	}
	slog.Debug("Exporter: EDF written", "records", records)
	return f.Close()
}
