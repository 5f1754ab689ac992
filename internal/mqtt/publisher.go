package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"eeg-backend/internal/models"
)

// Publisher handles MQTT publishing from channels
type Publisher struct {
	client mqtt.Client

	// Input channel (read by publisher, written by the session service)
	EngagementChan chan *models.EngagementMessage

	// Topic pattern
	engagementTopic string // e.g., "eeg/{device_id}/engagement"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	EngagementTopic string // e.g., "eeg/{device_id}/engagement"
}

// NewPublisher creates a new MQTT publisher with channels
func NewPublisher(
	client mqtt.Client,
	config PublisherConfig,
	engagementChan chan *models.EngagementMessage,
) *Publisher {
	return &Publisher{
		client:          client,
		EngagementChan:  engagementChan,
		engagementTopic: config.EngagementTopic,
	}
}

// Start begins publishing engagement scores from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	slog.Info("MQTT Publisher: starting")

	for {
		select {
		case <-ctx.Done():
			slog.Info("MQTT Publisher: context cancelled, shutting down")
			return

		case msg, ok := <-p.EngagementChan:
			if !ok {
				slog.Info("MQTT Publisher: engagement channel closed, shutting down")
				return
			}

			if err := p.publishEngagement(msg); err != nil {
				slog.Error("MQTT Publisher: publish failed", "err", err)
			}
		}
	}
}

// publishEngagement publishes one engagement score
func (p *Publisher) publishEngagement(msg *models.EngagementMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal engagement message: %w", err)
	}

	topic := formatTopic(p.engagementTopic, msg.DeviceID)

	// QoS 0: a missed live score is superseded by the next epoch
	token := p.client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish engagement: %w", token.Error())
	}

	slog.Debug("MQTT Publisher: engagement published",
		"device_id", msg.DeviceID, "topic", topic, "cycle", msg.Cycle)
	return nil
}

// formatTopic replaces {device_id} placeholder with actual device ID
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}
