package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/scrypster/ontograph/internal/analytics"
	"github.com/scrypster/ontograph/internal/config"
	"github.com/scrypster/ontograph/internal/engine"
	"github.com/scrypster/ontograph/internal/extract"
	"github.com/scrypster/ontograph/internal/llm"
	"github.com/scrypster/ontograph/internal/metrics"
	"github.com/scrypster/ontograph/internal/watch"
)

func runIngest(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data", cfg.Ontology.DataDir, "Corpus directory")
	ontologyPath := fs.String("ontology", cfg.Ontology.Path, "Ontology YAML file")
	watchDir := fs.Bool("watch", false, "Keep running and re-ingest when the corpus changes")
	debounce := fs.Duration("debounce", watch.DefaultDebounce, "Quiet period before a watched change triggers ingestion")
	schedule := fs.String("schedule", "", `Keep running and re-ingest on a cron spec (e.g. "@every 1h")`)
	analyze := fs.Bool("analyze", false, "Run graph analytics after each successful ingestion")
	snapshotDir := fs.String("snapshot", "", "Write a verified SQLite snapshot here after each successful ingestion")
	keep := fs.Int("keep", 5, "Snapshots to retain (0 keeps all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	onto, err := ontologies.Get(*ontologyPath)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	if *snapshotDir != "" && cfg.Storage.Engine != "sqlite" {
		printError(stderr, fmt.Errorf("-snapshot needs the sqlite storage engine, not %q", cfg.Storage.Engine))
		return 2
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer b.Close()

	gen, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	ext := extract.New(llm.NewTripletOracle(gen), onto, extractOptions(cfg.Extraction))
	ing := engine.NewIngestor(b.graph, b.docs, ext, engine.IngestorOptions{
		Embedder: embedder,
		Metrics:  metrics.Default(),
	})

	slog.Info("ontograph: ingest", "domain", onto.Domain(), "model", gen.GetModel(),
		"engine", cfg.Storage.Engine, "corpus", *dataDir)

	var mu sync.Mutex
	once := func() error {
		mu.Lock()
		defer mu.Unlock()

		sum, err := ing.Ingest(ctx, *dataDir)
		printIngestSummary(stdout, sum, err)
		if err != nil {
			return err
		}
		if *analyze {
			asum, err := analytics.Run(ctx, b.graph, b.graph, analytics.Options{})
			printAnalyticsSummary(stdout, asum, err)
			if err != nil {
				return err
			}
		}
		if b.sqlite != nil && *snapshotDir != "" {
			path, err := b.sqlite.Snapshot(ctx, *snapshotDir, *keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Snapshot: %s\n", path)
		}
		return nil
	}

	firstErr := once()
	if !*watchDir && *schedule == "" {
		if firstErr != nil {
			printError(stderr, firstErr)
			return 1
		}
		return 0
	}
	if firstErr != nil {
		printError(stderr, firstErr)
	}

	background := func() {
		if ctx.Err() != nil {
			return
		}
		if err := once(); err != nil && ctx.Err() == nil {
			printError(stderr, err)
		}
	}

	if *watchDir {
		w := watch.NewCorpusWatcher(*dataDir, *debounce, background)
		if err := w.Start(); err != nil {
			printError(stderr, err)
			return 1
		}
		defer w.Stop()
	}
	if *schedule != "" {
		s, err := watch.NewScheduler(*schedule, background)
		if err != nil {
			printError(stderr, err)
			return 2
		}
		s.Start()
		defer s.Stop()
	}

	fmt.Fprintln(stdout, "Waiting for changes. Press Ctrl+C to stop.")
	<-ctx.Done()
	return 0
}

func extractOptions(c config.ExtractionConfig) extract.Options {
	retries := c.MaxRetries
	if retries == 0 {
		// Zero in the environment means no retries.
		retries = -1
	}
	return extract.Options{
		ChunkBudget:       c.MaxTripletsPerChunk,
		Parallelism:       c.Parallelism,
		ChunkSize:         c.ChunkSize,
		ChunkOverlap:      c.ChunkOverlap,
		ChunkTimeout:      c.ChunkTimeout,
		MaxRetries:        retries,
		RetryBackoff:      c.RetryBackoff,
		RequestsPerSecond: c.RequestsPerSecond,
		Metrics:           metrics.Default(),
	}
}

func runAnalyze(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	damping := fs.Float64("damping", 0.85, "PageRank damping factor")
	tolerance := fs.Float64("tolerance", 1e-7, "PageRank convergence threshold")
	resolution := fs.Float64("resolution", 1, "Louvain modularity resolution")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer b.Close()

	start := time.Now()
	sum, err := analytics.Run(ctx, b.graph, b.graph, analytics.Options{
		DampingFactor: *damping,
		Tolerance:     *tolerance,
		Resolution:    *resolution,
	})
	printAnalyticsSummary(stdout, sum, err)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	slog.Debug("ontograph: analyze finished", "elapsed", time.Since(start))
	return 0
}
