package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"eeg-backend/internal/aggregator"
	"eeg-backend/internal/database"
	"eeg-backend/internal/engagement"
	"eeg-backend/internal/epoch"
	"eeg-backend/internal/export"
	"eeg-backend/internal/models"
	"eeg-backend/internal/spectral"
)

// Capturer produces one epoch per call
type Capturer interface {
	Capture(ctx context.Context) (*models.Epoch, error)
}

// SessionConfig holds configuration for a session run
type SessionConfig struct {
	DeviceID         string
	Repeats          int
	PersistQueueSize int
	PersistTimeout   time.Duration
	Quality          aggregator.QualityConfig
}

// Summary describes a finished run
type Summary struct {
	Cycles    int // cycles started, including skipped and rejected ones
	Scored    int
	Persisted int
	Skipped   int // no samples during the window
	Rejected  int // epoch too short to analyze
	Failed    int // persistence failed
	ExportErr error
}

// SessionService drives the capture, analyze, score and persist cycle a fixed
// number of times and exports the accumulated results at the end
type SessionService struct {
	capturer Capturer
	scorer   *engagement.Scorer
	sink     database.Sink
	exporter *export.Exporter // nil disables export
	config   SessionConfig

	// Optional output channel for live scores (read by the MQTT publisher)
	EngagementChan chan *models.EngagementMessage
}

// NewSessionService creates a new session service
func NewSessionService(
	capturer Capturer,
	scorer *engagement.Scorer,
	sink database.Sink,
	exporter *export.Exporter,
	config SessionConfig,
) *SessionService {
	return &SessionService{
		capturer: capturer,
		scorer:   scorer,
		sink:     sink,
		exporter: exporter,
		config:   config,
	}
}

// Run executes the configured number of cycles. Per-cycle failures are
// counted and never stop the run. When ctx is cancelled no new cycle starts,
// queued epochs are still persisted and the accumulated results are still
// exported; Run then returns ctx.Err() alongside the summary.
func (s *SessionService) Run(ctx context.Context) (Summary, error) {
	slog.Info("SessionService: starting run", "repeats", s.config.Repeats, "device_id", s.config.DeviceID)

	var summary Summary
	acc := export.NewAccumulator(s.config.Repeats)

	worker := NewPersistWorker(s.sink, s.config.PersistQueueSize, s.config.PersistTimeout)
	go worker.Start(ctx)

	for cycle := 1; cycle <= s.config.Repeats; cycle++ {
		if ctx.Err() != nil {
			break
		}
		summary.Cycles++

		if err := s.runCycle(ctx, cycle, worker, acc, &summary); err != nil {
			break
		}
	}

	stats := worker.Close()
	summary.Persisted = stats.Persisted
	summary.Failed += stats.Failed

	if s.exporter != nil {
		summary.ExportErr = s.exporter.Export(acc)
		if summary.ExportErr != nil {
			slog.Error("SessionService: export failed", "err", summary.ExportErr)
		}
	}

	slog.Info("SessionService: run finished",
		"cycles", summary.Cycles,
		"scored", summary.Scored,
		"persisted", summary.Persisted,
		"skipped", summary.Skipped,
		"rejected", summary.Rejected,
		"failed", summary.Failed)

	return summary, ctx.Err()
}

// runCycle handles one epoch. It only returns an error when the run has to stop.
func (s *SessionService) runCycle(ctx context.Context, cycle int, worker *PersistWorker, acc *export.Accumulator, summary *Summary) error {
	ep, err := s.capturer.Capture(ctx)
	switch {
	case errors.Is(err, epoch.ErrAcquisitionUnavailable):
		summary.Skipped++
		slog.Warn("SessionService: device not connected, cycle skipped", "cycle", cycle)
		return nil
	case err != nil:
		if ctx.Err() != nil {
			slog.Info("SessionService: window interrupted", "cycle", cycle)
			return err
		}
		summary.Skipped++
		slog.Error("SessionService: capture failed, cycle skipped", "cycle", cycle, "err", err)
		return nil
	}

	s.logQuality(cycle, ep)

	spectra, err := spectral.Analyze(ep)
	if err != nil {
		summary.Rejected++
		slog.Warn("SessionService: epoch rejected", "cycle", cycle, "err", err)
		return nil
	}

	result := s.scorer.Score(ep.Timestamp, spectra)
	raw := models.NewRawRecord(ep)
	summary.Scored++

	slog.Info("SessionService: epoch scored",
		"cycle", cycle,
		"timestamp_ms", ep.TimestampMillis(),
		"coef_min", result.Record.CoefMin,
		"coef_max", result.Record.CoefMax,
		"coef_avg", result.Record.CoefAvg,
		"is_focused", result.Record.IsFocused)

	acc.Add(export.Entry{
		Cycle:      cycle,
		Epoch:      ep,
		Engagement: result.Record,
		Raw:        raw,
		Spectra:    spectra,
	})

	s.publish(cycle, result.Record)

	if err := worker.Submit(ctx, cycle, result.Record, raw); err != nil {
		summary.Failed++
		slog.Error("SessionService: epoch dropped before persistence", "cycle", cycle, "err", err)
		return err
	}
	return nil
}

// publish forwards the score to live clients without blocking the run
func (s *SessionService) publish(cycle int, record models.EngagementRecord) {
	if s.EngagementChan == nil {
		return
	}

	msg := &models.EngagementMessage{
		DeviceID:         s.config.DeviceID,
		Cycle:            cycle,
		EngagementRecord: record,
	}
	select {
	case s.EngagementChan <- msg:
	default:
		slog.Warn("SessionService: engagement channel full, dropping live score", "cycle", cycle)
	}
}

func (s *SessionService) logQuality(cycle int, ep *models.Epoch) {
	for _, q := range aggregator.AnalyzeQuality(ep, s.config.Quality) {
		switch {
		case q.IsFlat:
			slog.Warn("SessionService: flat channel, electrode may be off",
				"cycle", cycle, "channel", q.Channel, "rms", q.RMS, "samples", q.SampleCount)
		case q.IsClipping:
			slog.Warn("SessionService: channel clipping",
				"cycle", cycle, "channel", q.Channel, "peak", q.PeakAmplitude)
		default:
			slog.Debug("SessionService: channel quality",
				"cycle", cycle, "channel", q.Channel, "rms", q.RMS, "mean", q.Mean)
		}
	}
}
