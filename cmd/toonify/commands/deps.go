package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/toonify-go/internal/budget"
	"github.com/54b3r/toonify-go/internal/descriptor"
	"github.com/54b3r/toonify-go/internal/embedder"
	"github.com/54b3r/toonify-go/internal/index"
	"github.com/54b3r/toonify-go/internal/pipeline"
	"github.com/54b3r/toonify-go/internal/provider"
	"github.com/54b3r/toonify-go/internal/server"
	"github.com/54b3r/toonify-go/internal/store"
	"github.com/54b3r/toonify-go/internal/tracing"
)

// embeddingCacheTTL bounds how long a cached query vector is kept.
const embeddingCacheTTL = 7 * 24 * time.Hour

// services are the process-wide handles built once per command and shared
// by every run. Close releases them in reverse order of construction.
type services struct {
	pipeline *pipeline.Pipeline
	pingers  []server.Pinger
	closers  []func()
}

// Close releases every handle.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServices wires the model, encoder and index into a pipeline.
// Collectors are registered on reg. A topK of zero reads PIPELINE_TOP_K.
func buildServices(ctx context.Context, log *slog.Logger, reg prometheus.Registerer, topK int) (_ *services, err error) {
	svc := &services{}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()

	tracer := tracing.FromEnv()
	if tracer.Enabled() {
		svc.closers = append(svc.closers, tracer.Flush)
		log.Info("langfuse tracing enabled", slog.String("host", tracer.Host))
	} else {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
	}

	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	gen, err := descriptor.New(chatModel, descriptor.WithCallbacks(tracer.Handlers()...))
	if err != nil {
		return nil, err
	}

	enc, encPingers, err := buildEncoder(log, reg, svc)
	if err != nil {
		return nil, err
	}

	idx, err := openIndex(ctx, log)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, func() { _ = idx.Close() })

	if topK == 0 {
		topK = envInt("PIPELINE_TOP_K", pipeline.DefaultTopK)
	}
	p, err := pipeline.New(pipeline.Deps{
		Descriptor: gen,
		Encoder:    enc,
		Index:      idx,
	}, pipeline.Config{
		TopK:    topK,
		Budget:  budget.FromEnv(string(pipeline.StageVectorQuery)),
		Metrics: pipeline.NewMetrics(reg),
	})
	if err != nil {
		return nil, err
	}
	svc.pipeline = p

	svc.pingers = append(svc.pingers,
		server.NewLLMPinger(provider.HealthCheckFor(providerCfg), chatModel, "llm:"+string(providerCfg.Backend)),
	)
	svc.pingers = append(svc.pingers, encPingers...)
	svc.pingers = append(svc.pingers, server.NewPinger("index:"+idx.Name(), idx))
	return svc, nil
}

// pingableEmbedder is satisfied by the HTTP-backed embedders.
type pingableEmbedder interface {
	embedder.Embedder
	Ping(ctx context.Context) error
}

// buildEncoder constructs the query encoder from env, wrapping it in the
// Redis cache when EMBEDDING_CACHE_REDIS is set. Cleanup is registered on
// svc.
func buildEncoder(log *slog.Logger, reg prometheus.Registerer, svc *services) (embedder.Embedder, []server.Pinger, error) {
	base, info, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	embedder.Validate(log, info)

	var pingers []server.Pinger
	if pe, ok := base.(pingableEmbedder); ok {
		pingers = append(pingers, server.NewPinger("embedder:"+info.Backend, pe))
	}

	addr := os.Getenv("EMBEDDING_CACHE_REDIS")
	if addr == "" {
		return base, pingers, nil
	}
	kv, err := embedder.NewRedisKV(addr, embeddingCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	svc.closers = append(svc.closers, kv.Close)

	lookups := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "toonify",
		Subsystem: "embedder",
		Name:      "cache_lookups_total",
		Help:      "Embedding cache lookups, partitioned by result (hit|miss).",
	}, []string{"result"})

	log.Info("embedding cache enabled", slog.String("addr", addr))
	pingers = append(pingers, server.NewPinger("cache:redis", kv))
	return embedder.NewCachedEmbedder(base, kv, info.Model, lookups, log), pingers, nil
}

// openIndex opens the configured vector index backend.
func openIndex(ctx context.Context, log *slog.Logger) (index.Store, error) {
	cfg := index.ConfigFromEnv()
	idx, err := index.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s index: %w", cfg.Backend, err)
	}
	log.Info("index ready",
		slog.String("backend", idx.Name()),
		slog.String("collection", cfg.Collection),
	)
	return idx, nil
}

// openHistory opens the run history store. TOONIFY_HISTORY_DB=disabled
// turns it off; open failures are logged and also disable it. The returned
// close func is never nil.
func openHistory(log *slog.Logger) (store.History, func()) {
	noop := func() {}
	if os.Getenv("TOONIFY_HISTORY_DB") == "disabled" {
		log.Info("history: disabled via TOONIFY_HISTORY_DB=disabled")
		return nil, noop
	}
	path, err := store.DefaultDBPath()
	if err != nil {
		log.Warn("history: could not resolve DB path, disabling", slog.Any("error", err))
		return nil, noop
	}
	hs, err := store.Open(path)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("history: store opened", slog.String("path", path))
	return hs, func() { _ = hs.Close() }
}

// envInt returns the integer value of key, or fallback when unset or
// unparseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
