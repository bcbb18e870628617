package ledger

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink mirrors appended entries onto a Kafka topic for downstream
// compliance consumers. Delivery is asynchronous and best-effort: the
// store remains the source of truth and a broker outage never blocks
// or fails an append.
type KafkaSink struct {
	client *kgo.Client
	logger *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{client: client, logger: logger}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, entry Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode audit entry for kafka", slog.Any("error", err))
		return
	}
	record := &kgo.Record{
		Key:   []byte(entry.Actor),
		Value: payload,
	}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Error("publish audit entry to kafka",
				slog.Uint64("seq", entry.Seq), slog.Any("error", err))
		}
	})
}

// Close flushes buffered records and releases the client.
func (s *KafkaSink) Close(ctx context.Context) error {
	if err := s.client.Flush(ctx); err != nil {
		return err
	}
	s.client.Close()
	return nil
}
