package health

import (
	"sync"
	"time"
)

// StageLatencies breaks an update's total processing time down into the
// pipeline stages it notionally passed through, from the source database
// through to the vector index.
type StageLatencies struct {
	Postgresql    float64 `json:"postgresql"`
	Debezium      float64 `json:"debezium"`
	Kafka         float64 `json:"kafka"`
	UpdateService float64 `json:"update_service"`
	Embedding     float64 `json:"embedding"`
	Qdrant        float64 `json:"qdrant"`
}

// PipelineActivity is a single recorded update, retained for operational
// visibility into what the pipeline has processed recently.
type PipelineActivity struct {
	DocumentID string         `json:"document_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Stages     StageLatencies `json:"stage_latencies"`
}

// recentActivityDepth matches the upstream dashboard's "last 10 updates"
// window.
const recentActivityDepth = 10

// PipelineTracker retains the most recent update activity for the
// /api/pipeline/status endpoint.
type PipelineTracker struct {
	mu     sync.Mutex
	recent []PipelineActivity
}

// NewPipelineTracker builds an empty tracker.
func NewPipelineTracker() *PipelineTracker {
	return &PipelineTracker{}
}

// RecordUpdate appends an update's stage latencies, retaining only the most
// recent recentActivityDepth entries.
func (t *PipelineTracker) RecordUpdate(documentID string, stages StageLatencies) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recent = append(t.recent, PipelineActivity{
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Stages:     stages,
	})
	if len(t.recent) > recentActivityDepth {
		t.recent = t.recent[len(t.recent)-recentActivityDepth:]
	}
}

// Recent returns a copy of the tracked activity, oldest first.
func (t *PipelineTracker) Recent() []PipelineActivity {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PipelineActivity, len(t.recent))
	copy(out, t.recent)
	return out
}
