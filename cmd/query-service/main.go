// Package main implements the query-service binary: answers RAG queries
// against the vector index maintained by update-service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/StephaneWamba/real-time-rag/engine/cache"
	"github.com/StephaneWamba/real-time-rag/engine/embedding"
	"github.com/StephaneWamba/real-time-rag/engine/health"
	"github.com/StephaneWamba/real-time-rag/engine/llm"
	"github.com/StephaneWamba/real-time-rag/engine/query"
	"github.com/StephaneWamba/real-time-rag/engine/semantic"
	"github.com/StephaneWamba/real-time-rag/pkg/metrics"
	"github.com/StephaneWamba/real-time-rag/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	ServiceName      string
	Port             string
	OpenAIKey        string
	QdrantURL        string
	QdrantCollection string
	RedisURL         string
	EmbeddingModel   string
	EmbeddingDims    int
	LLMModel         string
	TopK             int
	CacheTTL         time.Duration
	RedisPoolSize    int
	CORSOrigin       string
}

func loadConfig() Config {
	return Config{
		ServiceName:      envOr("SERVICE_NAME", "query-service"),
		Port:             envOr("SERVICE_PORT", "8082"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		QdrantURL:        envOr("QDRANT_URL", "localhost:6334"),
		QdrantCollection: envOr("QDRANT_COLLECTION_NAME", "documents"),
		RedisURL:         envOr("REDIS_URL", "redis://localhost:6379"),
		EmbeddingModel:   envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDims:    envInt("EMBEDDING_DIMENSIONS", 384),
		LLMModel:         envOr("LLM_MODEL", "gpt-4o-mini"),
		TopK:             envInt("TOP_K", 5),
		CacheTTL:         time.Duration(envInt("CACHE_TTL", 3600)) * time.Second,
		RedisPoolSize:    envInt("REDIS_POOL_SIZE", 10),
		CORSOrigin:       envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("connect qdrant: %w", err)
	}
	defer vectorStore.Close()

	redisCache, err := cache.New(ctx, cfg.RedisURL, cfg.RedisPoolSize, cfg.CacheTTL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisCache.Close()

	embedder := embedding.New(cfg.OpenAIKey, cfg.EmbeddingModel, cfg.EmbeddingDims, 10, 5)
	answerer := llm.New(cfg.OpenAIKey, cfg.LLMModel, 5, 3)

	registry := metrics.New()
	queryLatency := registry.Histogram("query_latency_seconds", "end-to-end query latency", metrics.DefaultBuckets)
	querySamples := metrics.NewSampleRing(100)

	processor := query.New(embedder, vectorStore, answerer)

	checker := &health.Checker{
		Qdrant:    vectorStore,
		Redis:     redisCache,
		OpenAIKey: cfg.OpenAIKey,
		OpenAI:    answerer,
	}

	srv := buildServer(cfg, processor, redisCache, checker, registry, queryLatency, querySamples, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("query-service starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func buildServer(cfg Config, processor *query.Processor, cacheClient *cache.Cache, checker *health.Checker, registry *metrics.Registry, queryLatency *metrics.Histogram, querySamples *metrics.SampleRing, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", handleHealth(checker))
	r.Get("/ready", handleReady(checker))
	r.Get("/metrics", registry.Handler().ServeHTTP)
	r.Get("/api/metrics", handleMetricsSummary(querySamples))
	r.Get("/collections", handleCollections(cfg))
	r.Post("/query", handleQuery(processor, cacheClient, cfg, queryLatency, querySamples, logger))

	handler := mid.Chain(r, mid.Recover(logger), mid.Logger(logger))

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func handleHealth(checker *health.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overall, services := checker.CheckAll(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"status": overall, "services": services})
	}
}

func handleReady(checker *health.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready, deps := checker.CheckReadiness(r.Context())
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ready": ready, "dependencies": deps})
	}
}

func handleMetricsSummary(samples *metrics.SampleRing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"query_latency_avg_seconds": samples.Average(),
			"sample_count":              samples.Count(),
		})
	}
}

func handleCollections(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"collections": []string{cfg.QdrantCollection}})
	}
}

type queryRequest struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type queryResponse struct {
	Answer     string            `json:"answer"`
	Sources    []query.Source    `json:"sources"`
	LatencyMS  int64             `json:"latency_ms"`
	Confidence float64           `json:"confidence"`
	IsComplete bool              `json:"is_complete"`
	Pagination *query.Pagination `json:"pagination,omitempty"`
}

func handleQuery(processor *query.Processor, cacheClient *cache.Cache, cfg Config, latency *metrics.Histogram, samples *metrics.SampleRing, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Query == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
			return
		}
		if req.TopK <= 0 {
			req.TopK = cfg.TopK
		}
		if req.Page <= 0 {
			req.Page = 1
		}
		if req.PageSize <= 0 {
			req.PageSize = 10
		}

		start := time.Now()
		resp, err := processor.Process(r.Context(), cacheClient, cfg.CacheTTL, req.Query, req.TopK, req.Page, req.PageSize)
		if err != nil {
			logger.Error("query processing failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Query failed: " + err.Error()})
			return
		}
		elapsed := time.Since(start)
		latency.Observe(elapsed.Seconds())
		samples.Add(elapsed.Seconds())

		writeJSON(w, http.StatusOK, queryResponse{
			Answer:     resp.Answer,
			Sources:    resp.Sources,
			LatencyMS:  elapsed.Milliseconds(),
			Confidence: resp.Confidence,
			IsComplete: resp.IsComplete,
			Pagination: resp.Pagination,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
