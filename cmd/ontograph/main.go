// Command ontograph builds a schema-constrained knowledge graph from a corpus
// of documents, enriches it with graph analytics, and answers questions
// over it.
//
// Usage:
//
//	ontograph ingest   [-data dir] [-watch] [-schedule spec] [-analyze] [-snapshot dir]
//	ontograph analyze
//	ontograph query    "question"
//	ontograph ontology [-path file]
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/ontograph/internal/config"
	"github.com/scrypster/ontograph/internal/metrics"
)

const usage = `Usage: ontograph <command> [flags]

Commands:
  ingest     extract triplets from the corpus into the graph
  analyze    compute PageRank and communities over the graph
  query      answer a question from the graph
  ontology   validate and print the ontology

Run "ontograph <command> -h" for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	slog.SetDefault(newLogger(cfg.Log, stderr))

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ontology":
		return runOntology(cfg, rest, stdout, stderr)
	case "ingest", "analyze", "query":
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if err := cfg.Validate(); err != nil {
		printError(stderr, err)
		return 1
	}

	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		metrics.SetRecorder(prom)
		defer metrics.SetRecorder(nil)
		go func() {
			if err := prom.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics: server failed", "error", err)
			}
		}()
	}

	switch cmd {
	case "ingest":
		return runIngest(ctx, cfg, rest, stdout, stderr)
	case "analyze":
		return runAnalyze(ctx, cfg, rest, stdout, stderr)
	default:
		return runQuery(ctx, cfg, rest, stdout, stderr)
	}
}

// newLogger builds the process logger from configuration.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
