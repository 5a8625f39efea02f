// Command reasoningbankd runs the memory-backed reasoning loop as a small
// standalone HTTP service: an extraction endpoint for failed/rejected
// generations, a consolidate-now endpoint, and a background ticker that
// runs the same consolidation pass on a schedule. Wiring style (env-first
// config, godotenv fallback chain, signal-driven graceful shutdown) follows
// the teacher's cmd/agentd/main.go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"manifold/internal/config"
	"manifold/internal/observability"
	"manifold/internal/reasoningbank"
	"manifold/internal/reasoningbank/embedclient"
	"manifold/internal/reasoningbank/llmadapter"
	"manifold/internal/reasoningbank/memrepo"
	"manifold/internal/reasoningbank/pgrepo"
	"manifold/internal/reasoningbank/qdrantrepo"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}
	observability.InitLogger("reasoningbankd.log", envOr("LOG_LEVEL", "info"))

	capCfg, err := config.Load(envOr("REASONINGBANK_CONFIG", "reasoningbank.yaml"))
	if err != nil {
		log.Warn().Err(err).Msg("reasoningbankd: no capabilities config file, falling back to env-only defaults")
		capCfg = &config.CapabilitiesConfig{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := observability.InitOTel(ctx, observability.OTelConfig{
			Endpoint:       endpoint,
			ServiceName:    "reasoningbankd",
			ServiceVersion: envOr("SERVICE_VERSION", "dev"),
			Environment:    envOr("ENVIRONMENT", "development"),
		})
		if err != nil {
			log.Warn().Err(err).Msg("reasoningbankd: otel init failed, continuing without it")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	logger := reasoningbank.ZerologLogger{}
	meter := otel.Meter("reasoningbank")

	embedder := embedclient.New(embedclient.Config{
		BaseURL:   capCfg.Embedding.BaseURL,
		Path:      capCfg.Embedding.Path,
		Model:     capCfg.Embedding.Model,
		APIKey:    capCfg.Embedding.APIKey,
		APIHeader: capCfg.Embedding.APIHeader,
		Headers:   capCfg.Embedding.Headers,
		Timeout:   capCfg.Embedding.TimeoutDuration(),
		Dimension: capCfg.Embedding.Dimension,
	}, logger)

	generator, err := llmadapter.Build(capCfg.TextGen)
	if err != nil {
		log.Fatal().Err(err).Msg("reasoningbankd: failed to build text generator")
	}

	repo, closeRepo := buildRepository(ctx, embedder.Dimension(), logger)
	if closeRepo != nil {
		defer closeRepo()
	}

	engine := reasoningbank.NewConsolidationEngine(repo, reasoningbank.DefaultConfig(), logger, meter)
	extractor := reasoningbank.NewExtractor(repo, generator, embedder, logger)

	go runConsolidationLoop(ctx, engine, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/reasoningbank/extract/rejection", extractHandler(extractor.ExtractFromRejection))
	mux.HandleFunc("/reasoningbank/extract/build-failure", extractHandler(extractor.ExtractFromBuildFailure))
	mux.HandleFunc("/reasoningbank/consolidate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats := engine.Consolidate(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	})

	srv := &http.Server{Addr: envOr("REASONINGBANK_ADDR", ":8088"), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", srv.Addr).Msg("reasoningbankd listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("reasoningbankd: server failed")
	}
}

// buildRepository selects a MemoryRepository backend from
// REASONINGBANK_BACKEND ("postgres", "qdrant", or unset for in-process
// memory). The returned close func is nil when nothing needs closing.
func buildRepository(ctx context.Context, dim int, logger reasoningbank.Logger) (reasoningbank.MemoryRepository, func()) {
	switch os.Getenv("REASONINGBANK_BACKEND") {
	case "postgres":
		dsn := os.Getenv("REASONINGBANK_DATABASE_URL")
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("reasoningbankd: connect postgres")
		}
		repo := pgrepo.New(pool, dim)
		if err := repo.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("reasoningbankd: init postgres schema")
		}
		return repo, pool.Close
	case "qdrant":
		repo, err := qdrantrepo.New(ctx, os.Getenv("QDRANT_URL"), envOr("QDRANT_COLLECTION", "reasoningbank"), dim)
		if err != nil {
			log.Fatal().Err(err).Msg("reasoningbankd: connect qdrant")
		}
		return repo, func() { _ = repo.Close() }
	default:
		return memrepo.New(dim, logger), nil
	}
}

func runConsolidationLoop(ctx context.Context, engine *reasoningbank.ConsolidationEngine, logger reasoningbank.Logger) {
	interval := 15 * time.Minute
	if v := os.Getenv("REASONINGBANK_CONSOLIDATION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.Consolidate(ctx)
			logger.Info(ctx, "reasoningbankd: consolidation pass complete", map[string]any{
				"pruned": stats.Pruned, "merged": stats.Merged, "archived": stats.Archived, "success": stats.Success,
			})
		}
	}
}

// extractRequest is shared by both extraction endpoints; "content" carries
// the rejected artifact or the build output depending on which path the
// caller hits.
type extractRequest struct {
	TaskDescription string `json:"task_description"`
	Content         string `json:"content"`
	Reason          string `json:"reason"`
}

func extractHandler(fn func(ctx context.Context, taskDescription, content, reason string) []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		ids := fn(r.Context(), req.TaskDescription, req.Content, req.Reason)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"memory_ids": ids})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
