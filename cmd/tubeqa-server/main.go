package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/cache"
	"github.com/xhad/tubeqa/pkg/captions"
	cfgPkg "github.com/xhad/tubeqa/pkg/config"
	"github.com/xhad/tubeqa/pkg/llm"
	"github.com/xhad/tubeqa/pkg/processor"
	"github.com/xhad/tubeqa/pkg/qa"
	"github.com/xhad/tubeqa/pkg/relay"
	"github.com/xhad/tubeqa/pkg/store"
	"github.com/xhad/tubeqa/pkg/transcript"
	"github.com/xhad/tubeqa/pkg/wiki"
	"github.com/xhad/tubeqa/server"
)

func main() {
	var configPath, addr, ollamaURL, dbURL string
	var debug bool

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL (overrides config)")
	flag.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string; empty keeps vectors in memory")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if ollamaURL != "" {
		cfg.LLM.BaseURL = ollamaURL
		cfg.Embedder.BaseURL = ollamaURL
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid config", slog.String("field", e.Field), slog.String("message", e.Message))
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && err != http.ErrServerClosed {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *cfgPkg.Config) error {
	c := cache.New(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL, cfg.Cache.MaxEntries)
	defer c.Close()

	httpClient := &http.Client{Timeout: cfg.Captions.Timeout}
	r := relay.New(
		transcript.NewFetcher(transcript.WithHTTPClient(httpClient)),
		relay.WithPolling(cfg.Captions.MaxAttempts, cfg.Captions.Interval),
		relay.WithCache(c),
	)
	source := qa.NewYouTubeSource(r,
		captions.WithWatchURL(cfg.Captions.WatchURL),
		captions.WithHTTPClient(httpClient),
		captions.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Captions.RateLimit), 1)),
	)

	vectorStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer vectorStore.Close()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.Embedder.Model,
		BaseURL: cfg.Embedder.BaseURL,
	})
	if err != nil {
		return err
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})

	engine, err := qa.NewEngine(qa.Config{SearchLimit: cfg.Server.SearchLimit}, qa.Deps{
		Store:     vectorStore,
		Embedder:  embedder,
		Processor: &proc,
		Chat:      chatEngine,
		Source:    source,
		Wiki:      wiki.NewClient(wiki.WithTimeout(cfg.Captions.Timeout)),
		Memory:    qa.NewMemory(cfg.Server.HistoryTurns),
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AskTimeout:     cfg.Client.Timeout,
		Streaming:      cfg.UI.Streaming,
	}, engine, r, source.StateSource)

	return srv.ListenAndServe(ctx)
}

func newStore(ctx context.Context, cfg *cfgPkg.Config) (types.VectorStore, error) {
	if cfg.Database.URL == "" {
		slog.Info("no database configured, keeping vectors in memory")
		return store.NewMemoryStore(), nil
	}
	vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString:  cfg.Database.URL,
		TableName:   cfg.Database.TableName,
		VectorDim:   cfg.Database.VectorDim,
		SearchLimit: cfg.Server.SearchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	return vs, nil
}
