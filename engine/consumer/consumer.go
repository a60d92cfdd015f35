// Package consumer runs the Kafka consumer group loop that feeds CDC
// events into the update pipeline, routing events the pipeline can't
// process to the dead-letter sink rather than blocking the partition.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/StephaneWamba/real-time-rag/pkg/kafkautil"
)

// EventProcessor applies a single normalized CDC event to the vector index
// and cache.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, raw map[string]any) error
}

// DeadLetterSink routes a poison event aside instead of blocking its
// partition.
type DeadLetterSink interface {
	SendFailedEvent(ctx context.Context, event map[string]any, cause error, originalTopic string, offset int64, partition int32) error
}

// Consumer polls a Kafka consumer group and drives events through an
// EventProcessor, one record at a time, in the order each partition
// delivers them.
type Consumer struct {
	client    *kgo.Client
	processor EventProcessor
	dlq       DeadLetterSink
	log       *slog.Logger
}

// New builds a Consumer. brokers, topic, and group configure the
// underlying franz-go client to reset to the earliest offset for a new
// group and to auto-commit consumed offsets in the background, matching
// the CDC pipeline's at-least-once, ordered-per-partition delivery
// contract.
func New(brokers []string, topic, group string, processor EventProcessor, dlq DeadLetterSink, log *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(group),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client, processor: processor, dlq: dlq, log: log}, nil
}

// NewWithClient builds a Consumer around a pre-constructed client, used by
// tests and by callers that need nonstandard client options.
func NewWithClient(client *kgo.Client, processor EventProcessor, dlq DeadLetterSink, log *slog.Logger) *Consumer {
	return &Consumer{client: client, processor: processor, dlq: dlq, log: log}
}

// Close releases the underlying Kafka client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Run polls for records until ctx is cancelled, processing each record in
// the order it was fetched so a single partition's events never reorder.
// A processing failure sends the record to the dead-letter sink; the
// client's background auto-commit still advances past it, so a poison
// event never wedges its partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.log.Error("fetch error", "topic", e.Topic, "partition", e.Partition, "error", e.Err)
			}
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			c.handleRecord(ctx, rec)
		})
	}
}

func (c *Consumer) handleRecord(ctx context.Context, rec *kgo.Record) {
	recCtx := kafkautil.ExtractContext(rec)
	_ = recCtx // trace context is available to instrumentation wrapping ProcessEvent; not otherwise consumed here

	var event map[string]any
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		c.log.Warn("dropped unparseable record", "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset, "error", err)
		c.sendToDLQ(ctx, map[string]any{"raw": string(rec.Value)}, err, rec)
		return
	}

	if err := c.processor.ProcessEvent(ctx, event); err != nil {
		c.log.Error("event processing failed, routing to dead-letter sink",
			"topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset, "error", err)
		c.sendToDLQ(ctx, event, err, rec)
	}
}

func (c *Consumer) sendToDLQ(ctx context.Context, event map[string]any, cause error, rec *kgo.Record) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.SendFailedEvent(ctx, event, cause, rec.Topic, rec.Offset, rec.Partition); err != nil {
		c.log.Error("failed to publish to dead-letter sink", "error", err)
	}
}
