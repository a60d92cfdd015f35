package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
)

type fakeAPI struct {
	resp openai.EmbeddingResponse
	err  error
}

func (f *fakeAPI) CreateEmbeddings(_ context.Context, _ openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return f.resp, f.err
}

func (f *fakeAPI) ListModels(_ context.Context) (openai.ModelsList, error) {
	return openai.ModelsList{}, nil
}

func TestEmbedBatchEmpty(t *testing.T) {
	c := newWithAPI(&fakeAPI{}, "text-embedding-3-small", 384, 100, 10)
	vectors, err := c.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Fatalf("expected nil, got %v", vectors)
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	api := &fakeAPI{resp: openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{0, 1}},
		{Index: 0, Embedding: []float32{1, 0}},
	}}}
	c := newWithAPI(api, "text-embedding-3-small", 384, 100, 10)

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("vectors not placed by response index: %v", vectors)
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	api := &fakeAPI{resp: openai.EmbeddingResponse{Data: []openai.Embedding{{Index: 0, Embedding: []float32{1}}}}}
	c := newWithAPI(api, "text-embedding-3-small", 384, 100, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error on count mismatch")
	}
}

func TestEmbedBatchAPIError(t *testing.T) {
	api := &fakeAPI{err: errors.New("upstream down")}
	c := newWithAPI(api, "text-embedding-3-small", 384, 100, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbedOneReturnsFirstVector(t *testing.T) {
	api := &fakeAPI{resp: openai.EmbeddingResponse{Data: []openai.Embedding{{Index: 0, Embedding: []float32{1, 2, 3}}}}}
	c := newWithAPI(api, "text-embedding-3-small", 3, 100, 10)

	vec, err := c.EmbedOne(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %v", vec)
	}
}

func TestDimensions(t *testing.T) {
	c := newWithAPI(&fakeAPI{}, "text-embedding-3-small", 384, 100, 10)
	if c.Dimensions() != 384 {
		t.Fatalf("Dimensions() = %d, want 384", c.Dimensions())
	}
}
