package eventproc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/StephaneWamba/real-time-rag/engine/chunker"
	"github.com/StephaneWamba/real-time-rag/engine/semantic"
	"github.com/StephaneWamba/real-time-rag/pkg/fn"
)

type fakeEmbedder struct {
	calls int
	fail  int
	err   error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

type fakeVectorIndex struct {
	upserted []semantic.VectorRecord
	deleted  []string
	upsertErr error
}

func (f *fakeVectorIndex) UpsertChunks(_ context.Context, records []semantic.VectorRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, records...)
	return nil
}

func (f *fakeVectorIndex) DeleteDocumentChunks(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

type fakeCache struct {
	deletedKeys []string
}

func (f *fakeCache) Delete(_ context.Context, key string) {
	f.deletedKeys = append(f.deletedKeys, key)
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(embedder Embedder, vi VectorIndex, cache Invalidator) *Processor {
	return New(vi, embedder, cache, chunker.DefaultOptions, fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}, Metrics{}, silentLogger())
}

func TestProcessEventDropsMissingIDOrContent(t *testing.T) {
	vi := &fakeVectorIndex{}
	cache := &fakeCache{}
	p := newTestProcessor(&fakeEmbedder{}, vi, cache)

	raw := map[string]any{"__op": "c", "content": "no id here"}
	if err := p.ProcessEvent(context.Background(), raw); err != nil {
		t.Fatalf("expected nil error on dropped event, got %v", err)
	}
	if len(vi.upserted) != 0 {
		t.Fatal("expected no upsert for dropped event")
	}
}

func TestProcessEventCreateUpsertsAndInvalidatesCache(t *testing.T) {
	vi := &fakeVectorIndex{}
	cache := &fakeCache{}
	p := newTestProcessor(&fakeEmbedder{}, vi, cache)

	raw := map[string]any{
		"__op":    "c",
		"id":      "doc-1",
		"content": "hello world this is a document",
		"version": 1,
	}
	if err := p.ProcessEvent(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vi.upserted) == 0 {
		t.Fatal("expected chunks to be upserted")
	}
	found := false
	for _, k := range cache.deletedKeys {
		if k == "query:doc-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cache invalidation for query:doc-1, got %v", cache.deletedKeys)
	}
}

func TestProcessEventDeleteRemovesChunksAndInvalidatesCache(t *testing.T) {
	vi := &fakeVectorIndex{}
	cache := &fakeCache{}
	p := newTestProcessor(&fakeEmbedder{}, vi, cache)

	raw := map[string]any{
		"__op": "d",
		"id":   "doc-2",
	}
	if err := p.ProcessEvent(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vi.deleted) != 1 || vi.deleted[0] != "doc-2" {
		t.Fatalf("expected delete of doc-2, got %v", vi.deleted)
	}
}

func TestProcessEventDeletedFlagForcesDelete(t *testing.T) {
	vi := &fakeVectorIndex{}
	cache := &fakeCache{}
	p := newTestProcessor(&fakeEmbedder{}, vi, cache)

	raw := map[string]any{
		"__deleted": "true",
		"id":        "doc-3",
	}
	if err := p.ProcessEvent(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vi.deleted) != 1 || vi.deleted[0] != "doc-3" {
		t.Fatalf("expected delete of doc-3, got %v", vi.deleted)
	}
}

func TestProcessEventRetriesEmbeddingThenSucceeds(t *testing.T) {
	vi := &fakeVectorIndex{}
	cache := &fakeCache{}
	embedder := &fakeEmbedder{fail: 1, err: errors.New("transient")}
	p := newTestProcessor(embedder, vi, cache)

	raw := map[string]any{
		"__op":    "u",
		"id":      "doc-4",
		"content": "retry me please",
		"version": 2,
	}
	if err := p.ProcessEvent(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if embedder.calls < 2 {
		t.Fatalf("expected at least 2 embed attempts, got %d", embedder.calls)
	}
}

func TestProcessEventDropsEmptyMetadataOnlyEnvelope(t *testing.T) {
	vi := &fakeVectorIndex{}
	cache := &fakeCache{}
	p := newTestProcessor(&fakeEmbedder{}, vi, cache)

	raw := map[string]any{"__op": "c", "__source_ts_ms": int64(123)}
	if err := p.ProcessEvent(context.Background(), raw); err != nil {
		t.Fatalf("expected nil error on dropped event, got %v", err)
	}
	if len(vi.upserted) != 0 || len(vi.deleted) != 0 {
		t.Fatal("expected no vector index mutation for metadata-only envelope")
	}
}
