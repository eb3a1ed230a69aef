package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/dispatch-console/internal/models"
)

// LocationProducer publishes driver location beacons for the consumer
// pipeline (kafka -> redis geo mirror).
type LocationProducer struct {
	writer *kafka.Writer
}

func NewLocationProducer(brokers []string, topic string) *LocationProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &LocationProducer{writer: w}
}

func (k *LocationProducer) PublishLocation(d models.Driver) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(d)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(d.ID), Value: b})
}

func (k *LocationProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// AssignmentEvent is the audit-feed envelope for ledger changes.
type AssignmentEvent struct {
	Kind       string            `json:"kind"` // created, accepted, rejected, completed, cancelled
	Assignment models.Assignment `json:"assignment"`
	At         time.Time         `json:"at"`
}

// EventProducer publishes assignment lifecycle events.
type EventProducer struct {
	writer *kafka.Writer
}

func NewEventProducer(brokers []string, topic string) *EventProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &EventProducer{writer: w}
}

func (k *EventProducer) PublishAssignment(kind string, a models.Assignment) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(AssignmentEvent{Kind: kind, Assignment: a, At: time.Now()})
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(a.ID), Value: b})
}

func (k *EventProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
