package analytics

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
)

// communities runs Louvain modularity optimisation over the n nodes of g,
// whose IDs must be 0..n-1, and returns each node's community together with
// the modularity of the partition. Communities are numbered by their
// smallest member so a fixed seed gives stable IDs across runs.
func communities(g graph.Undirected, n, pairs int, resolution float64, seed uint64) ([]int, float64) {
	if n == 0 {
		return nil, 0
	}
	var groups [][]graph.Node
	for _, c := range community.Modularize(g, resolution, &splitMix{state: seed}).Communities() {
		if len(c) == 0 {
			continue
		}
		sort.Slice(c, func(i, j int) bool { return c[i].ID() < c[j].ID() })
		groups = append(groups, c)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID() < groups[j][0].ID() })

	membership := make([]int, n)
	for i, c := range groups {
		for _, v := range c {
			membership[v.ID()] = i
		}
	}
	if pairs == 0 {
		// Modularity is undefined without edges.
		return membership, 0
	}
	return membership, community.Q(g, groups, resolution)
}

// splitMix is a small seeded source for the Louvain node ordering.
type splitMix struct{ state uint64 }

func (s *splitMix) Seed(seed uint64) { s.state = seed }

func (s *splitMix) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
