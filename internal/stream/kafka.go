package stream

import (
	"context"
	"errors"
	"time"

	"jobpulse/internal/config"
	jperrors "jobpulse/internal/errors"

	"github.com/segmentio/kafka-go"
)

// KafkaLog adapts a kafka-go consumer-group reader to the JobLog contract.
// Each worker replica holds a distinct member of the same group, so the
// broker assigns disjoint partitions and restarts resume from committed
// offsets.
type KafkaLog struct {
	reader *kafka.Reader
	logger *jperrors.Logger

	// pending keeps kafka messages addressable by partition/offset so
	// Commit can hand the original message back to the reader.
	pending map[pendingKey]kafka.Message
}

type pendingKey struct {
	partition int
	offset    int64
}

// Ensure KafkaLog implements JobLog
var _ JobLog = (*KafkaLog)(nil)

// NewKafkaLog creates a consumer-group reader for the raw jobs topic.
func NewKafkaLog(cfg config.KafkaConfig, logger *jperrors.Logger) *KafkaLog {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // explicit commits only
		StartOffset:    kafka.FirstOffset,
	})

	logger.Info("Kafka consumer initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"group_id", cfg.GroupID)

	return &KafkaLog{
		reader:  reader,
		logger:  logger,
		pending: make(map[pendingKey]kafka.Message),
	}
}

// Poll implements JobLog.
func (k *KafkaLog) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := k.reader.FetchMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		// Caller cancellation is not a log failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	k.pending[pendingKey{msg.Partition, msg.Offset}] = msg

	return &Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}, nil
}

// Commit implements JobLog.
func (k *KafkaLog) Commit(ctx context.Context, msg *Message) error {
	key := pendingKey{msg.Partition, msg.Offset}
	original, ok := k.pending[key]
	if !ok {
		return errors.New("commit for message not delivered by this consumer")
	}

	if err := k.reader.CommitMessages(ctx, original); err != nil {
		return err
	}
	delete(k.pending, key)
	return nil
}

// Close implements JobLog.
func (k *KafkaLog) Close() error {
	return k.reader.Close()
}
