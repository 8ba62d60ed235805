package scene

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic prefix when none is configured.
const DefaultPublishPrefix = "parallax"

// posePayload is the per-view message shape.
type posePayload struct {
	Label     string  `json:"label"`
	Focal     float64 `json:"focal"`
	Pose      string  `json:"pose"`
	Timestamp int64   `json:"timestamp"`
}

// runPayload is the run-summary message shape.
type runPayload struct {
	Views      int     `json:"views"`
	Loss       float64 `json:"loss"`
	Matches    int     `json:"matches"`
	ExportPath string  `json:"exportPath"`
	Timestamp  int64   `json:"timestamp"`
}

// Publisher pushes completed run results to MQTT so downstream consumers
// (dashboards, archival) see fresh poses without polling the CSV.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a result publisher. A nil client disables publishing
// (useful for testing).
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,    // results are one-shot; at-least-once fits
		retain:        true, // retain the latest run for late subscribers
	}
}

// ConnectPublisher dials the configured broker and returns a ready
// publisher.
func ConnectPublisher(config MQTTConfig) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetConnectTimeout(10 * time.Second)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connecting to MQTT broker %s: timeout", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", config.Broker, err)
	}

	return NewPublisher(client, config.PublishPrefix), nil
}

// PublishRun publishes each pose record to its own topic and a summary to
// the run topic.
func (p *Publisher) PublishRun(result *RunResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	now := time.Now().Unix()
	for _, rec := range result.Records {
		payload := posePayload{
			Label:     rec.Label,
			Focal:     rec.Focal,
			Pose:      rec.Pose.String(),
			Timestamp: now,
		}
		topic := fmt.Sprintf("%s/poses/%s", p.publishPrefix, rec.Label)
		if err := p.publish(topic, payload); err != nil {
			return err
		}
	}

	summary := runPayload{
		Views:      len(result.Views),
		Loss:       result.Loss,
		Matches:    result.MatchCount,
		ExportPath: result.ExportPath,
		Timestamp:  now,
	}
	if err := p.publish(fmt.Sprintf("%s/run", p.publishPrefix), summary); err != nil {
		return err
	}

	log.Printf("Published %d pose(s) and run summary to %s/*", len(result.Records), p.publishPrefix)
	return nil
}

// publish marshals and sends one message, waiting briefly for the broker ack.
func (p *Publisher) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling message for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
