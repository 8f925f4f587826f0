package analytics

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
)

// pageRank scores the n nodes of g, whose IDs must be 0..n-1. Mass held by
// nodes without out-links is spread evenly over the graph, so the scores sum
// to one.
func pageRank(g graph.Directed, n int, damping, tolerance float64) []float64 {
	if n == 0 {
		return nil
	}
	ranks := make([]float64, n)
	for id, r := range network.PageRankSparse(g, damping, tolerance) {
		ranks[id] = r
	}
	return ranks
}
