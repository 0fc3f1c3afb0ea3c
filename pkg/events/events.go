// Package events publishes pipeline notifications (a new model version, a
// finished prediction batch) to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypeModelRegistered      = "model.registered"
	TypePredictionsCompleted = "predictions.completed"
)

// Event is the envelope written to the topic.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`

	// Key partitions the event, usually the model name.
	Key string `json:"-"`
}

// New wraps payload in an envelope with a fresh id.
func New(eventType, key string, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
		Key:        key,
	}
}

// ModelRegistered is published after training registers a model version.
type ModelRegistered struct {
	Name    string             `json:"name"`
	Version int                `json:"version"`
	RunID   string             `json:"run_id"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// PredictionsCompleted is published after a prediction batch is written.
type PredictionsCompleted struct {
	ModelURI     string `json:"model_uri"`
	ModelVersion int    `json:"model_version"`
	Rows         int    `json:"rows"`
	Churners     int    `json:"churners"`
	Output       string `json:"output"`
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// ---------------------------
// Kafka
// ---------------------------

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages to one topic.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	msgs := make([]kafkago.Message, 0, len(events))
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("events: marshal %s: %w", evt.Type, err)
		}
		p.logger.Debug("publishing event",
			zap.String("event_type", evt.Type),
			zap.String("event_id", evt.ID.String()),
			zap.String("topic", p.topic),
			zap.Int("payload_size", len(payload)),
		)
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(evt.Key),
			Value: payload,
			Headers: []kafkago.Header{
				{Key: "event_type", Value: []byte(evt.Type)},
				{Key: "event_id", Value: []byte(evt.ID.String())},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("events: publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// ---------------------------
// Local
// ---------------------------

// NopPublisher drops events after logging them.
type NopPublisher struct {
	Logger *zap.Logger
}

func (p NopPublisher) Publish(_ context.Context, events ...Event) error {
	if p.Logger == nil {
		return nil
	}
	for _, evt := range events {
		p.Logger.Debug("event not published, no broker configured", zap.String("event_type", evt.Type))
	}
	return nil
}

func (NopPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// NopPublisher otherwise.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) Publisher {
	if len(brokers) == 0 {
		return NopPublisher{Logger: logger}
	}
	return NewKafkaPublisher(brokers, topic, logger)
}
