// Package query answers a question against the vector index: retrieve,
// assemble a bounded context window, ask the LLM for a grounded structured
// answer, then filter and paginate the supporting sources.
package query

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/StephaneWamba/real-time-rag/engine/llm"
	"github.com/StephaneWamba/real-time-rag/engine/semantic"
)

// maxContextChars bounds how much retrieved text is fed to the LLM in one
// call; a match that would overflow it is truncated, and anything past that
// is dropped rather than silently included out of budget.
const maxContextChars = 32000

// minSourceScore is the similarity floor a source must clear to be surfaced
// to the caller, independent of whether the LLM actually cited it.
const minSourceScore = 0.15

// lowConfidenceThreshold below this (or an incomplete answer) restricts
// surfaced sources to ones the LLM actually cited.
const lowConfidenceThreshold = 0.3

// Embedder embeds the incoming query text.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher retrieves the nearest chunks to a query embedding.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// Answerer produces a grounded structured answer from assembled context.
type Answerer interface {
	GenerateStructured(ctx context.Context, query, contextText string, documentIDs []string) (*llm.StructuredAnswer, error)
}

// GetSetter is the subset of engine/cache.Cache this package depends on,
// kept narrow so callers can inject a fake in tests without a live Redis.
type GetSetter interface {
	GetJSON(ctx context.Context, key string, out any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Source is a single retrieved chunk surfaced alongside the answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
	Version    int     `json:"version"`
	Cited      bool    `json:"cited"`
}

// Pagination describes a page of sources within a larger result set. It is
// omitted entirely (nil) when every source fits on one page.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// Response is the answer to a query, cached verbatim once computed.
type Response struct {
	Answer     string      `json:"answer"`
	Sources    []Source    `json:"sources"`
	Confidence float64     `json:"confidence"`
	IsComplete bool        `json:"is_complete"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Processor answers queries against the vector index.
type Processor struct {
	embedder Embedder
	searcher Searcher
	answerer Answerer
}

// New builds a Processor. The cache and its TTL are supplied per call to
// Process rather than held on the Processor.
func New(embedder Embedder, searcher Searcher, answerer Answerer) *Processor {
	return &Processor{embedder: embedder, searcher: searcher, answerer: answerer}
}

// CacheKey derives the literal cache key for a query, matching the format
// the original service used: no namespace prefix, just a versioned tag plus
// an MD5 digest of the raw query text.
func CacheKey(query string) string {
	sum := md5.Sum([]byte(query))
	return "query_response:v2:" + hex.EncodeToString(sum[:])
}

// noMatchResponse is returned (and never cached) when retrieval finds
// nothing relevant to answer from.
func noMatchResponse() Response {
	return Response{
		Answer:     "I couldn't find relevant information to answer your question.",
		Sources:    []Source{},
		Confidence: 0,
		IsComplete: false,
	}
}

// Process answers a query, consulting cache first and writing the computed
// answer back to cache on a miss. A no-match result is intentionally never
// cached, so a later write to the underlying documents has a chance to
// produce a real answer on the next identical query.
func (p *Processor) Process(ctx context.Context, cache GetSetter, cacheTTL time.Duration, query string, topK, page, pageSize int) (Response, error) {
	key := CacheKey(query)

	var cached Response
	if cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	embedding, err := p.embedder.EmbedOne(ctx, query)
	if err != nil {
		return Response{}, err
	}

	matches, err := p.searcher.Search(ctx, embedding, topK)
	if err != nil {
		return Response{}, err
	}
	if len(matches) == 0 {
		return noMatchResponse(), nil
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	contextText, used := assembleContext(matches)

	documentIDs := make([]string, 0, len(used))
	for _, m := range used {
		if m.DocumentID != "" {
			documentIDs = append(documentIDs, m.DocumentID)
		}
	}

	answer, err := p.answerer.GenerateStructured(ctx, query, contextText, documentIDs)
	if err != nil {
		return Response{}, err
	}

	cited := make(map[string]bool, len(answer.Citations))
	for _, c := range answer.Citations {
		cited[c] = true
	}

	sources := make([]Source, len(used))
	for i, m := range used {
		sources[i] = Source{
			DocumentID: m.DocumentID,
			Score:      m.Score,
			Version:    m.Version,
			Cited:      cited[m.DocumentID],
		}
	}
	sources = filterSources(sources, answer.Confidence, answer.IsComplete)
	paginated, pagination := paginateSources(sources, page, pageSize)

	resp := Response{
		Answer:     answer.Answer,
		Sources:    paginated,
		Confidence: answer.Confidence,
		IsComplete: answer.IsComplete,
		Pagination: pagination,
	}

	_ = cache.SetJSON(ctx, key, resp, cacheTTL)
	return resp, nil
}

// assembleContext packs matches into a single prompt string bounded by
// maxContextChars, joining included chunks with a blank line. A chunk that
// would overflow the budget is truncated if more than 100 characters of room
// remain, and dropped (along with every match after it) otherwise.
func assembleContext(matches []semantic.SearchResult) (string, []semantic.SearchResult) {
	var parts []string
	var used []semantic.SearchResult
	totalChars := 0

	for _, m := range matches {
		sepLen := 0
		if len(parts) > 0 {
			sepLen = 2
		}
		contentLen := len(m.Content)

		if totalChars+contentLen+sepLen <= maxContextChars {
			parts = append(parts, m.Content)
			used = append(used, m)
			totalChars += contentLen + sepLen
			continue
		}

		remaining := maxContextChars - totalChars - sepLen
		if remaining > 100 {
			truncated := m.Content[:remaining]
			parts = append(parts, truncated)
			m.Content = truncated
			used = append(used, m)
		}
		break
	}

	return strings.Join(parts, "\n\n"), used
}

// filterSources applies the confidence-gated visibility policy: a zero
// confidence answer surfaces no sources at all; a low-confidence or
// incomplete answer only surfaces sources the LLM actually cited (still
// subject to the score floor); otherwise any source above the score floor
// is surfaced regardless of citation.
func filterSources(sources []Source, confidence float64, isComplete bool) []Source {
	if confidence == 0 {
		return []Source{}
	}

	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if confidence < lowConfidenceThreshold || !isComplete {
			if s.Cited && s.Score >= minSourceScore {
				out = append(out, s)
			}
			continue
		}
		if s.Score >= minSourceScore {
			out = append(out, s)
		}
	}
	return out
}

// paginateSources slices sources into the requested page. Pagination
// metadata is only attached when there is more than one page's worth of
// sources to report.
func paginateSources(sources []Source, page, pageSize int) ([]Source, *Pagination) {
	total := len(sources)
	if total <= pageSize {
		return sources, nil
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return sources[start:end], &Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
		HasNext:    end < total,
		HasPrev:    page > 1,
	}
}
