package outbox

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type stubProducer struct {
	written map[string][]kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	if s.written == nil {
		s.written = make(map[string][]kafka.Message)
	}
	s.written[topic] = append(s.written[topic], msgs...)
	return nil
}

type stubRegistry struct {
	id    int
	calls int
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	s.calls++
	return s.id, nil
}

func TestDeliverFramesAndBatchesByTopic(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, nil, 0, 10)

	payload := []byte(`{"record_id":"rec-1"}`)
	messages := []Message{
		{
			EventID:       1,
			EventType:     "steps.recorded",
			Topic:         "step_events",
			SchemaSubject: "step_events-value",
			PartitionKey:  "user-1",
			Payload:       payload,
		},
		{
			EventID:       2,
			EventType:     "team.member_joined",
			Topic:         "team_events",
			SchemaSubject: "team_events-value",
			PartitionKey:  "ABC123",
			Payload:       []byte(`{"team_code":"ABC123"}`),
		},
	}

	require.NoError(t, d.deliver(context.Background(), messages))

	require.Len(t, producer.written["step_events"], 1)
	require.Len(t, producer.written["team_events"], 1)

	record := producer.written["step_events"][0]
	require.Equal(t, []byte("user-1"), record.Key)
	require.Equal(t, byte(0), record.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(record.Value[1:5]))
	require.Equal(t, payload, record.Value[5:])
}

func TestDeliverCachesSchemaIDs(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 7}
	d := NewDispatcher(nil, producer, registry, nil, 0, 10)

	msg := Message{
		EventType:     "steps.recorded",
		Topic:         "step_events",
		SchemaSubject: "step_events-value",
		PartitionKey:  "user-1",
		Payload:       []byte(`{}`),
	}

	require.NoError(t, d.deliver(context.Background(), []Message{msg}))
	require.NoError(t, d.deliver(context.Background(), []Message{msg}))
	require.Equal(t, 1, registry.calls)
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	d := NewDispatcher(nil, &stubProducer{}, &stubRegistry{}, nil, 0, 10)

	err := d.deliver(context.Background(), []Message{{EventType: "stray.event"}})
	require.Error(t, err)
}
