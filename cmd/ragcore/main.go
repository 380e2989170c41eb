// Command ragcore runs a single guarded retrieval against a configured
// vector store and prints the response, optionally streaming a cited answer.
// It is the operational smoke tool for a ragcore deployment; the serving
// surface is whatever application embeds the library.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/lumenworks/ragcore/internal/access"
	"github.com/lumenworks/ragcore/internal/config"
	"github.com/lumenworks/ragcore/internal/embeddings"
	"github.com/lumenworks/ragcore/internal/guardrail"
	"github.com/lumenworks/ragcore/internal/llm"
	"github.com/lumenworks/ragcore/internal/rerank"
	"github.com/lumenworks/ragcore/internal/retrieval"
	"github.com/lumenworks/ragcore/internal/search"
	"github.com/lumenworks/ragcore/internal/synthesis"
	"github.com/lumenworks/ragcore/internal/tenant"
	"github.com/lumenworks/ragcore/internal/tracing"
	"github.com/lumenworks/ragcore/internal/vectordb"
)

func main() {
	var (
		query      = flag.String("query", "", "query text (required)")
		tenantID   = flag.String("tenant", "default", "tenant id")
		userID     = flag.String("user", "cli", "acting user id")
		groups     = flag.String("groups", "", "comma-separated group ids")
		lang       = flag.String("lang", "", "preferred language filter")
		limit      = flag.Int("limit", 0, "result limit (0 uses the configured default)")
		docID      = flag.String("doc", "", "restrict retrieval to one document id")
		synthesize = flag.Bool("synthesize", false, "stream a cited answer when answerable")
	)
	flag.Parse()
	if *query == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("Tracing unavailable, continuing without it", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, synth := buildPipeline(ctx, cfg, logger)

	user := access.UserContext{
		UserID:   *userID,
		TenantID: *tenantID,
		Language: *lang,
	}
	if *groups != "" {
		user.GroupIDs = strings.Split(*groups, ",")
	}

	req := retrieval.Request{Query: *query, DocID: *docID}
	if *limit > 0 {
		req.Limit = limit
	}

	resp, err := orch.Retrieve(ctx, cfg.Collection, req, user)
	if err != nil {
		logger.Fatal("Retrieval failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode response", zap.Error(err))
	}
	fmt.Println(string(out))

	if *synthesize && resp.IsAnswerable {
		if err := streamAnswer(ctx, synth, *query, resp); err != nil {
			logger.Fatal("Synthesis failed", zap.Error(err))
		}
	}
}

// buildPipeline wires the retrieval components from process configuration.
// Optional collaborators (Redis, reranker) degrade to nil rather than
// failing startup.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*retrieval.Orchestrator, *synthesis.Adapter) {
	store := vectordb.NewClient(cfg.VectorDB, logger)

	var cache embeddings.Cache
	if cfg.Embeddings.EnableRedis {
		c, err := embeddings.NewRedisCache(cfg.Embeddings.RedisAddr)
		if err != nil {
			logger.Warn("Embedding Redis cache unavailable", zap.Error(err))
		} else {
			cache = c
		}
	}
	embedder := embeddings.NewService(cfg.Embeddings, cache, logger)

	var persist tenant.Persistence
	if cfg.Tenant.RedisAddr != "" {
		p, err := tenant.NewRedisPersistence(cfg.Tenant.RedisAddr)
		if err != nil {
			logger.Warn("Tenant Redis persistence unavailable", zap.Error(err))
		} else {
			persist = p
		}
	}
	tenants := tenant.NewStore(cfg.Tenant.CacheTTL, persist, logger)
	if cfg.Tenant.PresetsPath != "" {
		if err := tenants.LoadPresetFile(ctx, cfg.Tenant.PresetsPath); err != nil {
			logger.Warn("Tenant preset file not loaded", zap.Error(err), zap.String("path", cfg.Tenant.PresetsPath))
		}
	}

	var reranker retrieval.Reranker
	if cfg.Rerank.Enabled {
		var scorer rerank.Scorer
		if cfg.Rerank.Backend == "local" {
			scorer = rerank.NewLocalScorer()
		} else {
			scorer = rerank.NewHTTPScorer(cfg.Rerank, logger)
		}
		reranker = rerank.NewService(cfg.Rerank, scorer, logger)
	}

	guard := guardrail.NewEvaluator(logger, func(rec guardrail.AuditRecord) {
		logger.Info("Guardrail decision",
			zap.String("audit_id", rec.ID),
			zap.String("tenant", rec.TenantID),
			zap.String("rationale", rec.DecisionRationale),
			zap.Int("results", rec.ResultsCount),
			zap.Duration("duration", rec.TotalDuration),
		)
	})

	orch := retrieval.NewOrchestrator(
		cfg.Retrieval,
		embedder,
		search.NewVectorAdapter(store, logger),
		search.NewKeywordAdapter(store, cfg.Keyword, logger),
		reranker,
		guard,
		tenants,
		logger,
	)
	synth := synthesis.NewAdapter(cfg.Synthesis, llm.NewClient(cfg.LLM, logger), logger)
	return orch, synth
}

func streamAnswer(ctx context.Context, synth *synthesis.Adapter, query string, resp *retrieval.Response) error {
	events, err := synth.Synthesize(ctx, query, resp)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Kind {
		case llm.EventCitations:
			for _, c := range ev.Citations {
				fmt.Fprintf(os.Stderr, "[%d] %s %s\n", c.Index, c.ChunkID, c.Source)
			}
		case llm.EventChunk:
			fmt.Print(ev.Text)
		case llm.EventError:
			return ev.Err
		case llm.EventDone:
			fmt.Println()
		}
	}
	return nil
}
