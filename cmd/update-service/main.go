// Package main implements the update-service binary: consumes document CDC
// events off Kafka, maintains the vector index and its cache, and exposes
// the document CRUD HTTP surface backed by Postgres.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/StephaneWamba/real-time-rag/engine/cache"
	"github.com/StephaneWamba/real-time-rag/engine/chunker"
	"github.com/StephaneWamba/real-time-rag/engine/consumer"
	"github.com/StephaneWamba/real-time-rag/engine/dlq"
	"github.com/StephaneWamba/real-time-rag/engine/domain"
	"github.com/StephaneWamba/real-time-rag/engine/embedding"
	"github.com/StephaneWamba/real-time-rag/engine/eventproc"
	"github.com/StephaneWamba/real-time-rag/engine/health"
	"github.com/StephaneWamba/real-time-rag/engine/semantic"
	"github.com/StephaneWamba/real-time-rag/engine/store"
	"github.com/StephaneWamba/real-time-rag/pkg/fn"
	"github.com/StephaneWamba/real-time-rag/pkg/metrics"
	"github.com/StephaneWamba/real-time-rag/pkg/mid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config holds all environment-based configuration.
type Config struct {
	ServiceName        string
	Port               string
	OpenAIKey          string
	PostgresURL        string
	KafkaBrokers       []string
	KafkaTopic         string
	QdrantURL          string
	QdrantCollection   string
	RedisURL           string
	EmbeddingModel     string
	EmbeddingDims      int
	ChunkSize          int
	ChunkOverlap       int
	CacheTTL           time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	RetryBackoff       float64
	DLQTopic           string
	DLQEnabled         bool
	QdrantPoolSize     int
	RedisPoolSize      int
	ConsumerGroup      string
	CORSOrigin         string
}

func loadConfig() Config {
	return Config{
		ServiceName:      envOr("SERVICE_NAME", "update-service"),
		Port:             envOr("SERVICE_PORT", "8081"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		PostgresURL:      envOr("POSTGRES_URL", "postgres://localhost:5432/documents"),
		KafkaBrokers:     strings.Split(envOr("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), ","),
		KafkaTopic:       envOr("KAFKA_TOPIC_DOCUMENTS", "documents.public.documents"),
		QdrantURL:        envOr("QDRANT_URL", "localhost:6334"),
		QdrantCollection: envOr("QDRANT_COLLECTION_NAME", "documents"),
		RedisURL:         envOr("REDIS_URL", "redis://localhost:6379"),
		EmbeddingModel:   envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDims:    envInt("EMBEDDING_DIMENSIONS", 384),
		ChunkSize:        envInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     envInt("CHUNK_OVERLAP", 200),
		CacheTTL:         time.Duration(envInt("CACHE_TTL", 3600)) * time.Second,
		MaxRetries:       envInt("MAX_RETRIES", 3),
		RetryDelay:       time.Duration(envFloat("RETRY_DELAY_SECONDS", 1.0) * float64(time.Second)),
		RetryBackoff:     envFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
		DLQTopic:         envOr("DLQ_TOPIC", "documents.dlq"),
		DLQEnabled:       envBool("DLQ_ENABLED", true),
		QdrantPoolSize:   envInt("QDRANT_POOL_SIZE", 10),
		RedisPoolSize:    envInt("REDIS_POOL_SIZE", 10),
		ConsumerGroup:    envOr("KAFKA_CONSUMER_GROUP", "update-service"),
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

	db, err := store.New(ctx, cfg.PostgresURL, 10)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("connect qdrant: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, cfg.EmbeddingDims); err != nil {
		return fmt.Errorf("ensure qdrant collection: %w", err)
	}

	redisCache, err := cache.New(ctx, cfg.RedisURL, cfg.RedisPoolSize, cfg.CacheTTL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisCache.Close()

	embedder := embedding.New(cfg.OpenAIKey, cfg.EmbeddingModel, cfg.EmbeddingDims, 10, 5)

	dlqClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.KafkaBrokers...))
	if err != nil {
		return fmt.Errorf("dlq kafka client: %w", err)
	}
	defer dlqClient.Close()
	dlqSink := dlq.New(dlqClient, cfg.DLQTopic, cfg.DLQEnabled)

	registry := metrics.New()
	procMetrics := eventproc.Metrics{
		UpdatesTotal:         registry.Counter("update_events_total", "CDC events processed"),
		UpdateErrorsTotal:    registry.Counter("update_errors_total", "CDC events that failed processing"),
		UpdateLagSeconds:     registry.Histogram("update_lag_seconds", "source-to-index lag", metrics.DefaultBuckets),
		UpdateProcessingTime: registry.Histogram("update_processing_seconds", "time to process one event", metrics.DefaultBuckets),
		LagSamples:           metrics.NewSampleRing(100),
		Pipeline:             health.NewPipelineTracker(),
	}

	retryOpts := fn.RetryOpts{
		MaxAttempts: cfg.MaxRetries + 1,
		InitialWait: cfg.RetryDelay,
		MaxWait:     30 * time.Second,
		Jitter:      true,
	}
	chunkOpts := chunker.Options{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap}

	processor := eventproc.New(vectorStore, embedder, redisCache, chunkOpts, retryOpts, procMetrics, logger)

	kafkaConsumer, err := consumer.New(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ConsumerGroup, processor, dlqSink, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer kafkaConsumer.Close()

	go func() {
		if err := kafkaConsumer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("consumer loop exited", "err", err)
		}
	}()

	checker := &health.Checker{
		Qdrant:    vectorStore,
		Redis:     redisCache,
		Postgres:  db,
		OpenAIKey: cfg.OpenAIKey,
		OpenAI:    embedder,
	}

	srv := buildServer(cfg, db, processor, checker, registry, procMetrics, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("update-service starting", "port", cfg.Port)
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

func buildServer(cfg Config, db *store.Store, processor *eventproc.Processor, checker *health.Checker, registry *metrics.Registry, procMetrics eventproc.Metrics, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", handleHealth(checker))
	r.Get("/ready", handleReady(checker))
	r.Get("/metrics", registry.Handler().ServeHTTP)
	r.Get("/api/metrics", handleMetricsSummary(procMetrics.LagSamples))
	r.Get("/api/pipeline/status", handlePipelineStatus(procMetrics.Pipeline))
	r.Post("/process-event", handleProcessEvent(processor, logger))

	r.Get("/api/documents", handleListDocuments(db, logger))
	r.Post("/api/documents", handleCreateDocument(db, logger))
	r.Get("/api/documents/{id}", handleGetDocument(db, logger))
	r.Put("/api/documents/{id}", handleUpdateDocument(db, logger))
	r.Delete("/api/documents/{id}", handleDeleteDocument(db, logger))

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

// metricsSummaryTracker is the narrow surface handleMetricsSummary needs
// from eventproc.Metrics' sample rings; nil-safe so the handler still
// responds before the pipeline has processed anything.
type metricsSummaryTracker interface {
	Average() float64
	Count() int
}

func handleMetricsSummary(lag metricsSummaryTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if lag == nil {
			writeJSON(w, http.StatusOK, map[string]any{"update_lag_avg_seconds": 0, "sample_count": 0})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"update_lag_avg_seconds": lag.Average(),
			"sample_count":           lag.Count(),
		})
	}
}

func handlePipelineStatus(tracker *health.PipelineTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tracker == nil {
			writeJSON(w, http.StatusOK, map[string]any{"recent_updates": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"recent_updates": tracker.Recent()})
	}
}

func handleProcessEvent(processor *eventproc.Processor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if err := processor.ProcessEvent(r.Context(), raw); err != nil {
			logger.Error("manual event injection failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
	}
}

type documentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type documentPatchRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func handleListDocuments(db *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 50)
		offset := queryInt(r, "offset", 0)
		docs, total, err := db.ListDocuments(r.Context(), limit, offset)
		if err != nil {
			logger.Error("list documents", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, domain.DocumentList{Documents: docs, Total: total, Limit: limit, Offset: offset})
	}
}

func handleCreateDocument(db *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req documentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		doc, err := db.CreateDocument(r.Context(), req.Title, req.Content)
		if err != nil {
			writeDocumentError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	}
}

func handleGetDocument(db *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		doc, err := db.GetDocument(r.Context(), id)
		if err != nil {
			writeDocumentError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleUpdateDocument(db *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req documentPatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		doc, err := db.UpdateDocument(r.Context(), id, req.Title, req.Content)
		if err != nil {
			writeDocumentError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleDeleteDocument(db *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ok, err := db.DeleteDocument(r.Context(), id)
		if err != nil {
			writeDocumentError(w, logger, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeDocumentError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var valErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		logger.Error("document operation failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
