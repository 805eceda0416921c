// Package kafka publishes scored features to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/geojson"
	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
)

// Message header keys.
const (
	HeaderRunID  = "run_id"
	HeaderScorer = "scorer"
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes each feature of a collection as one GeoJSON Feature
// message. It implements pipeline.Publisher.
type Writer struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish writes the whole collection in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, runID, scorer string, c domain.Collection) error {
	if len(c) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(c))
	for i, f := range c {
		msg, err := serializeToMessage(i, f, runID, scorer)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish features: %w", err)
	}
	w.metrics.FeaturesPublished.Add(float64(len(msgs)))
	w.logger.Info("features published", "count", len(msgs), "run_id", runID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey is the key of the feature at index i.
func MessageKey(i int) string {
	return "pt-" + strconv.Itoa(i)
}

func serializeToMessage(i int, f domain.Feature, runID, scorer string) (kafkago.Message, error) {
	data, err := geojson.EncodeFeature(f).MarshalJSON()
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature %d: %w", i, err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(i)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderRunID, Value: []byte(runID)},
			{Key: HeaderScorer, Value: []byte(scorer)},
		},
	}, nil
}
