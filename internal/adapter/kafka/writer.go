package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/solar-overlay/internal/config"
	"github.com/couchcryptid/solar-overlay/internal/domain"
)

// Writer produces overlay results and monthly frames.
// It implements pipeline.BatchLoader and pipeline.MonthlyPublisher.
type Writer struct {
	overlays *kafkago.Writer
	monthly  *kafkago.Writer
	logger   *slog.Logger
}

// NewWriter creates producers for the configured sink and monthly topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	return &Writer{
		overlays: newTopicWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic),
		monthly:  newTopicWriter(cfg.KafkaBrokers, cfg.KafkaMonthlyTopic),
		logger:   logger,
	}
}

func newTopicWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		// Frame batches run to a few hundred KB.
		BatchBytes: 8 << 20,
	}
}

// LoadBatch serializes and publishes overlay events to the sink topic in a
// single WriteMessages call. Events are keyed by viewer so one viewer's
// results stay ordered on a partition.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.OverlayEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeOverlay(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.overlays.WriteMessages(ctx, msgs...)
}

// PublishMonthly writes one selection's monthly frames to the monthly topic.
func (w *Writer) PublishMonthly(ctx context.Context, event domain.MonthlyFramesEvent) error {
	msg, err := serializeMonthly(event)
	if err != nil {
		return err
	}
	if err := w.monthly.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish monthly frames: %w", err)
	}
	w.logger.Debug("monthly frames published", "viewer_id", event.ViewerID, "selection_id", event.SelectionID)
	return nil
}

// Close closes both producers and returns the first error.
func (w *Writer) Close() error {
	err := w.overlays.Close()
	if mErr := w.monthly.Close(); err == nil {
		err = mErr
	}
	return err
}

func serializeOverlay(event domain.OverlayEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize overlay event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ViewerID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "selection_id", Value: []byte(event.SelectionID)},
			{Key: "projection", Value: []byte(event.Projection)},
			{Key: "generated_at", Value: []byte(event.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}

func serializeMonthly(event domain.MonthlyFramesEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize monthly frames: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ViewerID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "selection_id", Value: []byte(event.SelectionID)},
			{Key: "frames", Value: []byte(strconv.Itoa(len(event.Frames)))},
			{Key: "generated_at", Value: []byte(event.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
