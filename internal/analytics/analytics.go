// Package analytics enriches a persisted graph with PageRank scores and
// Louvain community IDs, computed in memory with gonum and written back to
// each node.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/scrypster/ontograph/internal/storage"
)

// Status values reported in Summary.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
)

// Options tunes the algorithms. Zero values take defaults.
type Options struct {
	DampingFactor float64 // default 0.85
	Tolerance     float64 // PageRank convergence threshold (default 1e-7)
	Resolution    float64 // Louvain modularity resolution (default 1)
	Seed          uint64  // Louvain node ordering (default 1)
}

func (o Options) withDefaults() Options {
	if o.DampingFactor <= 0 || o.DampingFactor >= 1 {
		o.DampingFactor = 0.85
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-7
	}
	if o.Resolution <= 0 {
		o.Resolution = 1
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

// Summary describes one analytics run.
type Summary struct {
	Status          string
	NodesProcessed  int
	Relationships   int
	NodesWritten    int
	ScoreMin        float64
	ScoreMax        float64
	ScoreMean       float64
	Communities     int
	Modularity      float64
	ComputeDuration time.Duration
	WriteDuration   time.Duration
}

// errNoTxWriter signals that a transaction-bound store cannot take analytics
// writes, so they go through the plain writer instead.
var errNoTxWriter = errors.New("analytics: transactional store has no analytics writer")

// Run reads the whole graph, computes PageRank and communities, and writes
// both onto every node. An empty graph yields StatusEmpty and no error.
// When writer is also a storage.Transactor all writes share one transaction.
func Run(ctx context.Context, reader storage.GraphReader, writer storage.AnalyticsWriter, opts Options) (*Summary, error) {
	opts = opts.withDefaults()

	nodes, err := reader.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: read nodes: %w", err)
	}
	if len(nodes) == 0 {
		slog.Warn("analytics: graph is empty, run ingestion first")
		return &Summary{Status: StatusEmpty}, nil
	}
	edges, err := reader.Edges(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: read edges: %w", err)
	}

	start := time.Now()
	p := project(nodes, edges)
	if p.dropped > 0 {
		slog.Warn("analytics: ignoring edges with unknown endpoints", "count", p.dropped)
	}
	if p.loops > 0 {
		slog.Debug("analytics: ignoring self-relations", "count", p.loops)
	}
	slog.Info("analytics: graph projected", "nodes", len(p.ids), "relationships", len(edges)-p.dropped)

	ranks := pageRank(p.directed, len(p.ids), opts.DampingFactor, opts.Tolerance)
	membership, modularity := communities(p.undirected, len(p.ids), p.pairs, opts.Resolution, opts.Seed)

	sum := &Summary{
		Status:          StatusSuccess,
		NodesProcessed:  len(p.ids),
		Relationships:   len(edges) - p.dropped,
		Modularity:      modularity,
		ComputeDuration: time.Since(start),
	}
	sum.ScoreMin, sum.ScoreMax, sum.ScoreMean = distribution(ranks)
	seen := make(map[int]struct{})
	for _, c := range membership {
		seen[c] = struct{}{}
	}
	sum.Communities = len(seen)

	slog.Info("analytics: pagerank complete", "min", sum.ScoreMin, "max", sum.ScoreMax, "mean", sum.ScoreMean)
	slog.Info("analytics: louvain complete", "communities", sum.Communities, "modularity", sum.Modularity)

	writeStart := time.Now()
	written, err := writeBack(ctx, writer, p.ids, ranks, membership)
	sum.NodesWritten = written
	sum.WriteDuration = time.Since(writeStart)
	if err != nil {
		return sum, err
	}
	return sum, nil
}

func writeBack(ctx context.Context, writer storage.AnalyticsWriter, ids []string, ranks []float64, membership []int) (int, error) {
	written := 0
	write := func(w storage.AnalyticsWriter) error {
		written = 0
		for i, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.SetNodeAnalytics(ctx, id, ranks[i], int64(membership[i])); err != nil {
				return fmt.Errorf("analytics: write node %s: %w", id, err)
			}
			written++
		}
		return nil
	}

	tx, ok := writer.(storage.Transactor)
	if !ok {
		return written, write(writer)
	}
	err := tx.InTx(ctx, func(g storage.GraphStore) error {
		w, ok := g.(storage.AnalyticsWriter)
		if !ok {
			return errNoTxWriter
		}
		return write(w)
	})
	if errors.Is(err, errNoTxWriter) {
		return written, write(writer)
	}
	if err != nil {
		// Nothing survived the rollback.
		return 0, err
	}
	return written, nil
}

func distribution(xs []float64) (lo, hi, mean float64) {
	if len(xs) == 0 {
		return 0, 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	var total float64
	for _, x := range xs {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
		total += x
	}
	return lo, hi, total / float64(len(xs))
}
