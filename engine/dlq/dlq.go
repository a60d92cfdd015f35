// Package dlq routes poison CDC events to a dead-letter topic so a failed
// update never silently drops a document revision.
package dlq

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/StephaneWamba/real-time-rag/engine/domain"
	"github.com/StephaneWamba/real-time-rag/pkg/kafkautil"
)

// FailedEvent is the envelope written to the dead-letter topic.
type FailedEvent struct {
	OriginalEvent map[string]any `json:"original_event"`
	Error         string         `json:"error"`
	OriginalTopic string         `json:"original_topic"`
	Offset        int64          `json:"offset"`
	Partition     int32          `json:"partition"`
	Timestamp     int64          `json:"timestamp"`
}

// Sink publishes failed events to the configured dead-letter topic. When
// disabled it no-ops, matching the pipeline's willingness to run without a
// DLQ in environments that don't provision one.
type Sink struct {
	client  *kgo.Client
	topic   string
	enabled bool
}

// New builds a Sink. If enabled is false, SendFailedEvent always no-ops.
func New(client *kgo.Client, topic string, enabled bool) *Sink {
	return &Sink{client: client, topic: topic, enabled: enabled}
}

// SendFailedEvent publishes a poison event alongside the error that killed
// it and the Kafka coordinates it was consumed from.
func (s *Sink) SendFailedEvent(ctx context.Context, event map[string]any, cause error, originalTopic string, offset int64, partition int32) error {
	if !s.enabled || s.client == nil {
		return nil
	}

	failed := FailedEvent{
		OriginalEvent: event,
		Error:         cause.Error(),
		OriginalTopic: originalTopic,
		Offset:        offset,
		Partition:     partition,
		Timestamp:     time.Now().Unix(),
	}

	if err := kafkautil.Produce(ctx, s.client, s.topic, failed); err != nil {
		return domain.NewDLQError("publish to dead-letter topic "+s.topic, err)
	}
	return nil
}
