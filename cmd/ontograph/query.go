package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/scrypster/ontograph/internal/config"
	"github.com/scrypster/ontograph/internal/llm"
	"github.com/scrypster/ontograph/internal/query"
)

func runQuery(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showFacts := fs.Bool("facts", false, "Print the graph facts used as context")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(stderr, `usage: ontograph query [-facts] "question"`)
		return 2
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, query.FriendlyError(err))
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

	engine := query.NewEngine(b.graph, gen, query.Options{Embedder: embedder})
	ans, err := engine.Ask(ctx, question)
	if err != nil {
		color.New(color.FgYellow).Fprintln(stderr, query.FriendlyError(err))
		return 1
	}

	if *showFacts {
		faint := color.New(color.Faint)
		for _, f := range ans.Facts {
			faint.Fprintf(stdout, "  %s\n", f)
		}
		fmt.Fprintln(stdout)
	}
	fmt.Fprintln(stdout, ans.Text)
	return 0
}
