// Command talentsearch runs the candidate hybrid-search service.
//
// Usage:
//
//	talentsearch serve
//	talentsearch serve --config config.yaml --log-level debug
//	talentsearch reindex --config config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/hireloop/talentsearch/pkg/config"
	"github.com/hireloop/talentsearch/pkg/consumer"
	"github.com/hireloop/talentsearch/pkg/embedding"
	"github.com/hireloop/talentsearch/pkg/indexer"
	"github.com/hireloop/talentsearch/pkg/lexical"
	"github.com/hireloop/talentsearch/pkg/logger"
	"github.com/hireloop/talentsearch/pkg/observability"
	"github.com/hireloop/talentsearch/pkg/search"
	"github.com/hireloop/talentsearch/pkg/server"
	"github.com/hireloop/talentsearch/pkg/source"
	"github.com/hireloop/talentsearch/pkg/vector"
)

const embeddingDim = 768

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the search service."`
	Reindex ReindexCmd `cmd:"" help:"Run a one-shot full reindex and exit."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("talentsearch version %s\n", version)
	return nil
}

// deps is the wired set of components shared by the serve and reindex
// commands.
type deps struct {
	cfg     *config.Config
	lex     *lexical.Store
	vec     *vector.Store
	gate    *embedding.Gate
	indexer *indexer.Indexer
	metrics *observability.Recorder
}

func buildDeps(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	metrics, err := observability.NewRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	lex, err := lexical.New(cfg.ElasticsearchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create lexical store: %w", err)
	}
	vec := vector.New(cfg.MilvusURL(), cfg.CandidateAlias+"_embeddings", embeddingDim, cfg.MilvusIndexParams)

	embedder := embedding.NewHTTPEmbedder(cfg.EmbedderURL, cfg.SentenceModelName, embeddingDim)
	gate, err := embedding.NewGate(embedder, cfg.EmbedPoolSize, cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding gate: %w", err)
	}
	// The model must be usable before we accept any work.
	if err := gate.Warmup(ctx); err != nil {
		return nil, fmt.Errorf("embedding warm-up failed: %w", err)
	}

	src := source.New(cfg.CandidateAPIURL)
	idx := indexer.New(lex, vec, gate, src, cfg.CandidateAlias, cfg.BatchSize, metrics)

	return &deps{
		cfg:     cfg,
		lex:     lex,
		vec:     vec,
		gate:    gate,
		indexer: idx,
		metrics: metrics,
	}, nil
}

// ServeCmd starts the HTTP API and the event consumer.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := buildDeps(ctx, cli.Config)
	if err != nil {
		return err
	}

	if err := d.lex.EnsureAlias(ctx, d.cfg.CandidateAlias); err != nil {
		return fmt.Errorf("failed to prepare lexical alias: %w", err)
	}
	if err := d.vec.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to prepare vector collection: %w", err)
	}

	engine := search.NewEngine(d.lex, d.vec, d.gate, d.cfg.CandidateAlias,
		d.cfg.SearchSize, d.cfg.SemanticTopK, d.cfg.RRFK, d.metrics)

	cons := consumer.New(d.cfg.AMQPURL(), d.cfg.ExchangeName, d.indexer, d.metrics)
	if err := cons.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	srv := server.New(d.cfg.HTTPAddr, engine, d.indexer, d.lex, d.vec, cons)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	// Stop accepting requests first, then the consumer, so no handler or
	// message is processing while the stores go away underneath it.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown incomplete", "error", err)
	}
	if err := cons.Close(); err != nil {
		slog.Warn("consumer shutdown incomplete", "error", err)
	}
	cancel()

	slog.Info("shutdown complete")
	return nil
}

// ReindexCmd rebuilds both indices from the candidate API and exits.
type ReindexCmd struct{}

func (c *ReindexCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := buildDeps(ctx, cli.Config)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := d.indexer.FullReindex(ctx)
	if err != nil {
		return fmt.Errorf("full reindex failed: %w", err)
	}

	slog.Info("full reindex complete",
		"active_index", result.ActiveIndex,
		"total_indexed", result.TotalIndexed,
		"duration", time.Since(start))
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("talentsearch"),
		kong.Description("Hybrid lexical and semantic search over candidate profiles."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
