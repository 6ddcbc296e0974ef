// Package ingest publishes engine events to Kafka: cab location updates
// (consumed by cmd/consumer) and committed bookings (for downstream
// consumers such as settlement or analytics).
package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-pooling/internal/models"
)

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &KafkaProducer{writer: w}
}

// PublishLocation emits one cab location update, keyed by cab id so a
// cab's updates stay ordered within a partition.
func (k *KafkaProducer) PublishLocation(upd models.CabLocationUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(upd.CabID, 10)),
		Value: b,
	})
}

// PublishBooking emits a committed booking, keyed by trip id.
func (k *KafkaProducer) PublishBooking(ctx context.Context, res models.BookingResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return k.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(res.TripID, 10)),
		Value: b,
	})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
