package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"eeg-backend/internal/models"
)

// ChannelBuffer keeps the most recent samples of every headset channel.
// Producers append frames as they arrive; readers take copies of the trailing
// window. All methods are safe for concurrent use.
type ChannelBuffer struct {
	capacity int // samples retained per channel
	scale    float64

	mu        sync.RWMutex
	channels  map[models.Channel][]float64
	lastFrame time.Time
	frames    uint64
}

// NewChannelBuffer creates a buffer holding up to capacity samples per channel.
// Every appended sample is multiplied by scale (1 keeps values unchanged).
func NewChannelBuffer(capacity int, scale float64) *ChannelBuffer {
	if scale == 0 {
		scale = 1
	}
	return &ChannelBuffer{
		capacity: capacity,
		scale:    scale,
		channels: make(map[models.Channel][]float64, len(models.Channels)),
	}
}

// Append adds a frame to the buffer, trimming each channel to capacity
func (b *ChannelBuffer) Append(frame *models.SampleFrame) {
	if frame == nil || len(frame.Samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch, samples := range frame.Samples {
		if len(samples) == 0 {
			continue
		}
		buf := b.channels[ch]
		for _, v := range samples {
			buf = append(buf, v*b.scale)
		}
		if over := len(buf) - b.capacity; over > 0 {
			// Shift in place so the backing array does not grow without bound.
			n := copy(buf, buf[over:])
			buf = buf[:n]
		}
		b.channels[ch] = buf
	}

	b.lastFrame = frame.Timestamp
	b.frames++
}

// Window returns copies of the last maxSamples samples of every channel that
// has data. Channels with shorter histories return what is available. An empty
// map means the device has not delivered anything yet.
func (b *ChannelBuffer) Window(maxSamples int) map[models.Channel][]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[models.Channel][]float64, len(b.channels))
	for ch, buf := range b.channels {
		if len(buf) == 0 {
			continue
		}
		start := 0
		if maxSamples > 0 && len(buf) > maxSamples {
			start = len(buf) - maxSamples
		}
		out[ch] = append([]float64(nil), buf[start:]...)
	}
	return out
}

// Reset drops all buffered samples, e.g. after the broker connection drops
func (b *ChannelBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = make(map[models.Channel][]float64, len(models.Channels))
	b.lastFrame = time.Time{}
}

// Stats returns the number of frames appended so far and the time of the last one
func (b *ChannelBuffer) Stats() (uint64, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frames, b.lastFrame
}

// Start consumes frames from the channel until ctx is cancelled or the channel
// is closed
func (b *ChannelBuffer) Start(ctx context.Context, frames <-chan *models.SampleFrame) {
	slog.Info("ChannelBuffer: Starting...", "capacity", b.capacity)

	for {
		select {
		case <-ctx.Done():
			slog.Info("ChannelBuffer: Shutting down...")
			return

		case frame, ok := <-frames:
			if !ok {
				slog.Info("ChannelBuffer: Frame channel closed, shutting down...")
				return
			}
			b.Append(frame)
		}
	}
}
