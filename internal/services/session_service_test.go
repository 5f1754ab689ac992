package services

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeg-backend/internal/aggregator"
	"eeg-backend/internal/database"
	"eeg-backend/internal/engagement"
	"eeg-backend/internal/epoch"
	"eeg-backend/internal/export"
	"eeg-backend/internal/models"
	"eeg-backend/pkg/config"
)

var t0 = time.Date(2024, 11, 23, 10, 0, 0, 0, time.UTC)

func sineEpoch(ts time.Time, n int) *models.Epoch {
	e := &models.Epoch{Timestamp: ts, SampleRate: 250, Samples: map[models.Channel][]float64{}}
	for _, ch := range models.Channels {
		s := make([]float64, n)
		for i := range s {
			s[i] = math.Sin(2*math.Pi*10*float64(i)/250) + 0.5*math.Sin(2*math.Pi*20*float64(i)/250)
		}
		e.Samples[ch] = s
	}
	return e
}

type captureStep struct {
	epoch *models.Epoch
	err   error
}

// scriptedCapturer replays steps in order; onCall runs before each step
type scriptedCapturer struct {
	steps  []captureStep
	calls  int
	onCall func(call int)
}

func (c *scriptedCapturer) Capture(ctx context.Context) (*models.Epoch, error) {
	c.calls++
	if c.onCall != nil {
		c.onCall(c.calls)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step := c.steps[(c.calls-1)%len(c.steps)]
	return step.epoch, step.err
}

// flakySink fails the calls listed in failOn and stores the rest in memory
type flakySink struct {
	*database.MemoryDB

	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (s *flakySink) Persist(ctx context.Context, eng models.EngagementRecord, raw models.RawRecord) (models.PersistResult, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failOn[s.calls]
	s.mu.Unlock()

	if fail {
		return models.PersistResult{}, &database.PersistenceError{Op: "raw_data", Err: errors.New("connection reset")}
	}
	return s.MemoryDB.Persist(ctx, eng, raw)
}

func newService(c Capturer, sink database.Sink, exporter *export.Exporter, repeats int) *SessionService {
	return NewSessionService(
		c,
		engagement.NewScorer(config.DefaultEngagementSettings(0.26)),
		sink,
		exporter,
		SessionConfig{
			DeviceID:         "headset-001",
			Repeats:          repeats,
			PersistQueueSize: 2,
			Quality:          aggregator.DefaultQualityConfig(),
		},
	)
}

func TestRun_ClassifiesCycles(t *testing.T) {
	capturer := &scriptedCapturer{steps: []captureStep{
		{err: epoch.ErrAcquisitionUnavailable},
		{epoch: sineEpoch(t0, 2500)},
		{epoch: sineEpoch(t0.Add(10*time.Second), 1)},
		{epoch: sineEpoch(t0.Add(20*time.Second), 500)},
	}}
	store := database.NewMemoryDB()

	summary, err := newService(capturer, store, nil, 4).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Cycles, "skipped cycles still advance the counter")
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 2, summary.Scored)
	assert.Equal(t, 2, summary.Persisted)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 4, capturer.calls)

	eng, err := store.EngagementBetween(context.Background(), t0, t0)
	require.NoError(t, err)
	require.Len(t, eng, 1)
	assert.Equal(t, t0, eng[0].Timestamp)

	raw, err := store.RawBetween(context.Background(), t0, t0)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, eng[0].Timestamp, raw[0].Timestamp, "both rows share the epoch timestamp")
}

func TestRun_PersistenceFailureDoesNotStopRun(t *testing.T) {
	capturer := &scriptedCapturer{steps: []captureStep{{epoch: sineEpoch(t0, 500)}}}
	sink := &flakySink{MemoryDB: database.NewMemoryDB(), failOn: map[int]bool{1: true}}

	summary, err := newService(capturer, sink, nil, 3).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Cycles)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Persisted)
	assert.Equal(t, 2, sink.Len())
}

func TestRun_ExportsAccumulatedResults(t *testing.T) {
	dir := t.TempDir()
	capturer := &scriptedCapturer{steps: []captureStep{{epoch: sineEpoch(t0, 500)}}}
	exporter := &export.Exporter{Dir: dir, EDF: true, DeviceID: "headset-001"}

	summary, err := newService(capturer, database.NewMemoryDB(), exporter, 2).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.ExportErr)

	for _, name := range []string{export.EngagementFile, export.RawFile, export.SpectraFile, export.EDFFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestRun_CancelStopsAndStillExports(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	capturer := &scriptedCapturer{
		steps: []captureStep{{epoch: sineEpoch(t0, 500)}},
		onCall: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}
	store := database.NewMemoryDB()
	exporter := &export.Exporter{Dir: dir}

	summary, err := newService(capturer, store, exporter, 10).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, summary.Cycles)
	assert.Equal(t, 1, summary.Scored)
	assert.Equal(t, 1, summary.Persisted, "queued epoch is persisted after cancel")
	assert.Equal(t, 1, store.Len())
	assert.NoError(t, summary.ExportErr)
	assert.FileExists(t, filepath.Join(dir, export.EngagementFile))
}

func TestRun_PublishesLiveScores(t *testing.T) {
	capturer := &scriptedCapturer{steps: []captureStep{{epoch: sineEpoch(t0, 500)}}}
	svc := newService(capturer, database.NewMemoryDB(), nil, 3)
	svc.EngagementChan = make(chan *models.EngagementMessage, 2)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Scored)

	// channel holds two, the third score is dropped instead of blocking
	require.Len(t, svc.EngagementChan, 2)
	msg := <-svc.EngagementChan
	assert.Equal(t, "headset-001", msg.DeviceID)
	assert.Equal(t, 1, msg.Cycle)
	assert.Equal(t, t0, msg.Timestamp)
}
