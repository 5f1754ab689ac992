package epoch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"eeg-backend/internal/models"
)

// ErrAcquisitionUnavailable is returned when the source delivered no samples
// for the whole window, which means the headset is not connected
var ErrAcquisitionUnavailable = errors.New("acquisition unavailable: no samples during window")

// Source exposes the current multi-channel sample window of the device.
// Window must return data owned by the caller.
type Source interface {
	Window(maxSamples int) map[models.Channel][]float64
}

// Config holds the epoch timing parameters
type Config struct {
	Window       time.Duration // acquisition window length
	SampleRate   float64       // Hz
	PollInterval time.Duration // how often the working snapshot is refreshed
}

// Controller runs fixed-duration acquisition windows against a Source
type Controller struct {
	source Source
	config Config
	now    func() time.Time // injectable for deterministic tests
}

// NewController creates an epoch controller
func NewController(source Source, config Config) *Controller {
	if config.PollInterval <= 0 {
		config.PollInterval = 20 * time.Millisecond
	}
	return &Controller{
		source: source,
		config: config,
		now:    time.Now,
	}
}

// MaxSamples returns the per-channel sample cap of one epoch
func (c *Controller) MaxSamples() int {
	return int(c.config.SampleRate * c.config.Window.Seconds())
}

// Capture runs one acquisition window and returns the frozen epoch.
//
// A sampling goroutine refreshes its own working snapshot every poll interval
// while a timer goroutine closes the window. When the window closes the
// sampler hands its last snapshot over a channel, and both goroutines are
// joined before the snapshot is read.
//
// Returns ErrAcquisitionUnavailable when nothing arrived during the window,
// and ctx.Err() when ctx is cancelled before the window closes.
func (c *Controller) Capture(ctx context.Context) (*models.Epoch, error) {
	started := c.now()
	maxSamples := c.MaxSamples()

	stop := make(chan struct{})
	handoff := make(chan map[models.Channel][]float64, 1)

	g, gctx := errgroup.WithContext(ctx)

	// Timer: closes the window after the configured duration.
	g.Go(func() error {
		defer close(stop)

		timer := time.NewTimer(c.config.Window)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-gctx.Done():
		}
		return nil
	})

	// Sampler: keeps the most recent snapshot until the window closes.
	g.Go(func() error {
		var snapshot map[models.Channel][]float64
		refresh := func() {
			if w := c.source.Window(maxSamples); len(w) > 0 {
				snapshot = w
			}
		}

		ticker := time.NewTicker(c.config.PollInterval)
		defer ticker.Stop()

		refresh()
		for {
			select {
			case <-stop:
				handoff <- snapshot
				return nil
			case <-ticker.C:
				refresh()
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	snapshot := <-handoff

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(snapshot) == 0 {
		slog.Warn("EpochController: no samples during window", "window", c.config.Window)
		return nil, ErrAcquisitionUnavailable
	}

	samples := make(map[models.Channel][]float64, len(snapshot))
	for ch, values := range snapshot {
		if maxSamples > 0 && len(values) > maxSamples {
			values = values[len(values)-maxSamples:]
		}
		samples[ch] = values
	}

	epoch := &models.Epoch{
		Timestamp:  time.UnixMilli(started.UnixMilli()).UTC(),
		SampleRate: c.config.SampleRate,
		Samples:    samples,
	}

	slog.Debug("EpochController: window closed",
		"timestamp_ms", epoch.TimestampMillis(),
		"channels", len(samples),
		"min_samples", epoch.MinLen(),
		"max_samples", maxSamples)

	return epoch, nil
}
