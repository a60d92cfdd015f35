package dlq

import (
	"context"
	"errors"
	"testing"
)

func TestSendFailedEventNoopWhenDisabled(t *testing.T) {
	s := New(nil, "dlq-topic", false)
	err := s.SendFailedEvent(context.Background(), map[string]any{"id": "doc-1"}, errors.New("boom"), "documents", 5, 0)
	if err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
}

func TestSendFailedEventNoopWhenClientNil(t *testing.T) {
	s := New(nil, "dlq-topic", true)
	err := s.SendFailedEvent(context.Background(), map[string]any{"id": "doc-1"}, errors.New("boom"), "documents", 5, 0)
	if err != nil {
		t.Fatalf("expected no-op with nil client, got error: %v", err)
	}
}
