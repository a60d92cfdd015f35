// Package kafkautil provides typed produce helpers and OpenTelemetry trace
// propagation over Kafka record headers, the franz-go equivalent of the
// header-propagation role pkg/natsutil used to play for NATS messages.
package kafkautil

import (
	"context"
	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
)

// headerCarrier adapts a *[]kgo.RecordHeader for OTel's TextMapCarrier.
type headerCarrier struct {
	headers *[]kgo.RecordHeader
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, val string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(val)
			return
		}
	}
	*c.headers = append(*c.headers, kgo.RecordHeader{Key: key, Value: []byte(val)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(*c.headers))
	for i, h := range *c.headers {
		keys[i] = h.Key
	}
	return keys
}

// Produce serializes v as JSON and synchronously produces it to topic,
// injecting the trace context from ctx into the record headers.
func Produce[T any](ctx context.Context, client *kgo.Client, topic string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rec := &kgo.Record{Topic: topic, Value: data}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &rec.Headers})
	return client.ProduceSync(ctx, rec).FirstErr()
}

// ExtractContext pulls a trace context out of a consumed record's headers,
// falling back to context.Background() when no propagated context is
// present.
func ExtractContext(rec *kgo.Record) context.Context {
	headers := rec.Headers
	return otel.GetTextMapPropagator().Extract(context.Background(), headerCarrier{headers: &headers})
}
