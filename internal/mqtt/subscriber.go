package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"eeg-backend/internal/models"
)

// SamplePayload is the JSON body published by the headset bridge.
//
// Either Channels maps labels to sample chunks, or Data holds one row per
// channel in canonical order (F4, F3, C4, C3, P4, P3, O1, O2).
//
//	{"timestamp": 1732356000000, "channels": {"F4": [..], "F3": [..]}}
//	{"timestamp": 1732356000000, "data": [[..], [..], ...]}
type SamplePayload struct {
	Timestamp int64                `json:"timestamp"` // ms since epoch, optional
	Channels  map[string][]float64 `json:"channels,omitempty"`
	Data      [][]float64          `json:"data,omitempty"`
}

// Subscriber handles MQTT subscriptions and writes sample frames to a channel
type Subscriber struct {
	client mqtt.Client

	// Output channel (written by subscriber, read by the channel buffer)
	FrameChan chan *models.SampleFrame

	samplesTopic string
	deviceID     string // accept only this device when set
	sendTimeout  time.Duration
	now          func() time.Time
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	SamplesTopic string // e.g., "eeg/+/samples"
	DeviceID     string // optional filter
}

// NewSubscriber creates a new MQTT subscriber writing to frameChan
func NewSubscriber(client mqtt.Client, config SubscriberConfig, frameChan chan *models.SampleFrame) *Subscriber {
	return &Subscriber{
		client:       client,
		FrameChan:    frameChan,
		samplesTopic: config.SamplesTopic,
		deviceID:     config.DeviceID,
		sendTimeout:  time.Second,
		now:          time.Now,
	}
}

// SubscribeAll subscribes to the sample topic
func (s *Subscriber) SubscribeAll() error {
	if s.samplesTopic == "" {
		return errors.New("no samples topic configured")
	}

	token := s.client.Subscribe(s.samplesTopic, 1, s.handleSamples)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to samples topic: %w", token.Error())
	}
	slog.Info("MQTT Subscriber: subscribed", "topic", s.samplesTopic)
	return nil
}

// handleSamples decodes one sample chunk and hands it to the buffer
func (s *Subscriber) handleSamples(client mqtt.Client, msg mqtt.Message) {
	// Extract device ID from topic (eeg/{device_id}/samples)
	deviceID := extractDeviceID(msg.Topic())
	if deviceID == "" {
		slog.Warn("MQTT Subscriber: could not extract device ID", "topic", msg.Topic())
		return
	}
	if s.deviceID != "" && deviceID != s.deviceID {
		return
	}

	frame, err := DecodeSamples(msg.Payload())
	if err != nil {
		slog.Warn("MQTT Subscriber: dropping malformed sample payload",
			"device_id", deviceID, "err", err)
		return
	}
	frame.DeviceID = deviceID
	if frame.Timestamp.IsZero() {
		frame.Timestamp = s.now()
	}

	// Write to channel (non-blocking with timeout)
	select {
	case s.FrameChan <- frame:
	case <-time.After(s.sendTimeout):
		slog.Warn("MQTT Subscriber: frame channel full, dropping message", "device_id", deviceID)
	}
}

// DecodeSamples parses a SamplePayload into a frame. Unknown channel labels
// are ignored; a payload with no known channel is an error.
func DecodeSamples(payload []byte) (*models.SampleFrame, error) {
	var p SamplePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal sample payload: %w", err)
	}

	frame := &models.SampleFrame{Samples: make(map[models.Channel][]float64, len(models.Channels))}
	if p.Timestamp > 0 {
		frame.Timestamp = time.UnixMilli(p.Timestamp).UTC()
	}

	switch {
	case len(p.Channels) > 0:
		for label, values := range p.Channels {
			ch, err := models.ParseChannel(label)
			if err != nil {
				continue
			}
			frame.Samples[ch] = values
		}
	case len(p.Data) > 0:
		if len(p.Data) != len(models.Channels) {
			return nil, fmt.Errorf("data matrix has %d rows, want %d", len(p.Data), len(models.Channels))
		}
		for i, ch := range models.Channels {
			frame.Samples[ch] = p.Data[i]
		}
	}

	if len(frame.Samples) == 0 {
		return nil, errors.New("payload carries no known channel")
	}
	return frame, nil
}

// extractDeviceID extracts device ID from MQTT topic
// Example: "eeg/headset-001/samples" -> "headset-001"
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
