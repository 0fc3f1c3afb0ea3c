package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "churn.events", logger: zap.NewNop()}

	evt := New(TypeModelRegistered, "xgb_churn", ModelRegistered{Name: "xgb_churn", Version: 4, RunID: "r1"})
	require.NoError(t, p.Publish(context.Background(), evt))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "xgb_churn", string(msg.Key))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, TypeModelRegistered, string(msg.Headers[0].Value))
	assert.Equal(t, evt.ID.String(), string(msg.Headers[1].Value))

	var decoded struct {
		ID      string          `json:"id"`
		Type    string          `json:"type"`
		Payload ModelRegistered `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.ID.String(), decoded.ID)
	assert.Equal(t, 4, decoded.Payload.Version)

	require.NoError(t, p.Publish(context.Background()))
	assert.Len(t, w.msgs, 1, "nothing to publish")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, topic: "churn.events", logger: zap.NewNop()}
	err := p.Publish(context.Background(), New(TypePredictionsCompleted, "", PredictionsCompleted{Rows: 3}))
	assert.ErrorContains(t, err, "broker down")
}

func TestNewPublisher(t *testing.T) {
	assert.IsType(t, NopPublisher{}, NewPublisher(nil, "t", zap.NewNop()))
	p := NewPublisher([]string{"localhost:9092"}, "t", zap.NewNop())
	assert.IsType(t, &KafkaPublisher{}, p)
	assert.NoError(t, p.Close())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	a, b := New("a", "", nil), New("b", "", nil)
	require.NoError(t, r.Publish(context.Background(), a, b))
	got := r.Events()
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.Equal(t, "b", got[1].Type)
}
