package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/station-snapshot-collector/internal/config"
	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
)

// Writer publishes snapshot events to a Kafka topic.
// It implements snapshot.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured snapshot topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSnapshotTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishSnapshot announces a saved snapshot. Messages are keyed by station so
// all snapshots of one station land on the same partition.
func (w *Writer) PublishSnapshot(ctx context.Context, s domain.Snapshot) error {
	msg, err := serializeToMessage(s)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish snapshot event: %w", err)
	}
	w.logger.Debug("snapshot event published", "station", s.StationID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Snapshot into a Kafka message.
func serializeToMessage(s domain.Snapshot) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.StationID),
		Value: data,
		Time:  s.FetchedAt,
		Headers: []kafkago.Header{
			{Key: "station_id", Value: []byte(s.StationID)},
			{Key: "fetched_at", Value: []byte(s.FetchedAt.Format(time.RFC3339))},
		},
	}, nil
}
