package kafka

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/solar-overlay/internal/config"
	"github.com/couchcryptid/solar-overlay/internal/domain"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("viewer-1"),
		Value:     []byte(`{"lat":37.4,"lng":-122.1}`),
		Topic:     "solar-overlay-requests",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("web")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("viewer-1"), raw.Key)
	assert.JSONEq(t, `{"lat":37.4,"lng":-122.1}`, string(raw.Value))
	assert.Equal(t, "solar-overlay-requests", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "web", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeOverlay(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	event := domain.OverlayEvent{
		ViewerID:    "viewer-1",
		SelectionID: "sel-1",
		ImagePNG:    []byte{0x89, 'P', 'N', 'G'},
		Bounds:      domain.Bounds{South: 1, West: 2, North: 3, East: 4},
		Projection:  domain.OutcomeDegraded,
		GeneratedAt: now,
	}

	msg, err := serializeOverlay(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("viewer-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"projection":"degraded"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "selection_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("sel-1"), msg.Headers[0].Value)
	assert.Equal(t, "projection", msg.Headers[1].Key)
	assert.Equal(t, []byte("degraded"), msg.Headers[1].Value)
	assert.Equal(t, "generated_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)

	var decoded domain.OverlayEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ImagePNG, decoded.ImagePNG)
	assert.Equal(t, event.Bounds, decoded.Bounds)
}

func TestSerializeMonthly(t *testing.T) {
	event := domain.MonthlyFramesEvent{
		ViewerID:    "viewer-1",
		SelectionID: "sel-1",
		Frames:      make([][]byte, 12),
		GeneratedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}

	msg, err := serializeMonthly(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("viewer-1"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "frames", msg.Headers[1].Key)
	assert.Equal(t, []byte("12"), msg.Headers[1].Value)
}

func TestNewWriterTopics(t *testing.T) {
	cfg := &config.Config{
		KafkaBrokers:      []string{"localhost:9092"},
		KafkaSinkTopic:    "overlays",
		KafkaMonthlyTopic: "monthly",
	}
	w := NewWriter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, "overlays", w.overlays.Topic)
	assert.Equal(t, "monthly", w.monthly.Topic)
}
