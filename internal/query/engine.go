// Package query answers natural-language questions from the knowledge graph.
// Question keywords select seed nodes, the seeds' neighbourhoods become
// context facts, and a language model writes the answer from those facts.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/scrypster/ontograph/internal/llm"
	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

var (
	// ErrEmptyGraph is returned when the graph holds no nodes at all.
	ErrEmptyGraph = errors.New("query: knowledge graph is empty")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("query: question is empty")
)

// NoInformation is the answer given when nothing in the graph matches.
const NoInformation = "The knowledge graph has no information about this question."

// Options bounds retrieval. Zero values take defaults.
type Options struct {
	MaxSeeds      int // seed nodes kept after ranking (default 5)
	SearchLimit   int // matches per keyword (default 10)
	NeighborLimit int // facts fetched per seed (default 10)
	MaxFacts      int // facts in the prompt (default 40)

	// Embedder enables vector retrieval when the reader also implements
	// storage.NodeEmbedder.
	Embedder llm.EmbeddingGenerator
}

func (o Options) withDefaults() Options {
	if o.MaxSeeds <= 0 {
		o.MaxSeeds = 5
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = 10
	}
	if o.NeighborLimit <= 0 {
		o.NeighborLimit = 10
	}
	if o.MaxFacts <= 0 {
		o.MaxFacts = 40
	}
	return o
}

// Answer is the result of Ask.
type Answer struct {
	Question string
	Text     string
	Keywords []string
	Seeds    []types.Node
	Facts    []string
}

// Engine answers questions. It is safe for concurrent use if its reader and
// generator are.
type Engine struct {
	reader   storage.GraphReader
	gen      llm.TextGenerator
	vectors  storage.NodeEmbedder
	embedder llm.EmbeddingGenerator
	opts     Options
}

// NewEngine creates an Engine.
func NewEngine(reader storage.GraphReader, gen llm.TextGenerator, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{reader: reader, gen: gen, opts: opts}
	if ne, ok := reader.(storage.NodeEmbedder); ok && opts.Embedder != nil {
		e.vectors = ne
		e.embedder = opts.Embedder
	}
	return e
}

// Ask retrieves graph context for question and has the model answer it.
// When no node matches, the answer is NoInformation and the model is not
// called.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	ans := &Answer{Question: question, Keywords: Keywords(question)}
	slog.Info("query: processing", "question", question, "keywords", ans.Keywords)

	seeds, err := e.seeds(ctx, question, ans.Keywords)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		if err := e.ensureNotEmpty(ctx); err != nil {
			return nil, err
		}
		ans.Text = NoInformation
		return ans, nil
	}
	ans.Seeds = seeds

	facts, err := e.facts(ctx, seeds)
	if err != nil {
		return nil, err
	}
	ans.Facts = facts

	lines := facts
	if len(lines) == 0 {
		for _, n := range seeds {
			lines = append(lines, fmt.Sprintf("%s is a %s", n.Name, n.Type))
		}
	}

	text, err := e.gen.Complete(ctx, llm.AnswerPrompt(question, lines))
	if err != nil {
		return nil, fmt.Errorf("query: generate answer: %w", err)
	}
	ans.Text = strings.TrimSpace(text)
	return ans, nil
}

// seeds gathers candidate nodes from keyword search and, when enabled,
// vector similarity, then keeps the MaxSeeds most central.
func (e *Engine) seeds(ctx context.Context, question string, keywords []string) ([]types.Node, error) {
	byID := make(map[string]types.Node)
	for _, kw := range keywords {
		nodes, err := e.reader.SearchNodes(ctx, kw, e.opts.SearchLimit)
		if err != nil {
			return nil, fmt.Errorf("query: search %q: %w", kw, err)
		}
		for _, n := range nodes {
			byID[n.ID] = n
		}
	}

	if e.vectors != nil {
		for _, n := range e.similar(ctx, question) {
			byID[n.ID] = n
		}
	}

	seeds := make([]types.Node, 0, len(byID))
	for _, n := range byID {
		seeds = append(seeds, n)
	}
	sort.Slice(seeds, func(i, j int) bool {
		pi, pj := score(seeds[i]), score(seeds[j])
		if pi != pj {
			return pi > pj
		}
		return seeds[i].Name < seeds[j].Name
	})
	if len(seeds) > e.opts.MaxSeeds {
		seeds = seeds[:e.opts.MaxSeeds]
	}
	return seeds, nil
}

// similar is best effort: vector retrieval only adds to keyword matches.
func (e *Engine) similar(ctx context.Context, question string) []types.Node {
	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		slog.Warn("query: embedding question failed", "error", err)
		return nil
	}
	nodes, err := e.vectors.SimilarNodes(ctx, vec, e.opts.SearchLimit)
	if err != nil {
		if !errors.Is(err, storage.ErrNotSupported) {
			slog.Warn("query: vector search failed", "error", err)
		}
		return nil
	}
	return nodes
}

func (e *Engine) facts(ctx context.Context, seeds []types.Node) ([]string, error) {
	seen := make(map[string]bool)
	var facts []string
	for _, n := range seeds {
		neighbors, err := e.reader.Neighbors(ctx, n.ID, e.opts.NeighborLimit)
		if err != nil {
			return nil, fmt.Errorf("query: neighbors of %s: %w", n.Name, err)
		}
		for _, f := range neighbors {
			line := f.String()
			if seen[line] {
				continue
			}
			seen[line] = true
			facts = append(facts, line)
			if len(facts) >= e.opts.MaxFacts {
				return facts, nil
			}
		}
	}
	return facts, nil
}

// ensureNotEmpty is only reached when nothing matched, so reading every node
// is rare.
func (e *Engine) ensureNotEmpty(ctx context.Context) error {
	nodes, err := e.reader.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("query: probe graph: %w", err)
	}
	if len(nodes) == 0 {
		return ErrEmptyGraph
	}
	return nil
}

func score(n types.Node) float64 {
	if n.PageRank == nil {
		return -1
	}
	return *n.PageRank
}
