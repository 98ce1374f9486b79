// Package notify delivers committed appointment events to patients and providers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events keyed by appointment id, so every event for one
// appointment lands on the same partition in order.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier uses an async writer: Notify returns once the message is buffered.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
		Async:    true,
	})}
}

func newKafkaNotifierWithWriter(w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

func (n *KafkaNotifier) Notify(ctx context.Context, ev appointment.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.AppointmentID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID.String())},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier writes events to the log. Used when no broker is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, ev appointment.Event) error {
	n.logger.Info().
		Str("event_type", ev.Type).
		Str("appointment_id", ev.AppointmentID.String()).
		Str("patient_id", ev.PatientID.String()).
		Str("status", string(ev.Status)).
		Time("starts_at", ev.StartsAt).
		Str("reason", ev.Reason).
		Msg("appointment event")
	return nil
}
