package analytics

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/scrypster/ontograph/pkg/types"
)

// projection is an in-memory copy of the graph. Graph node i is ids[i];
// nodes are ordered by ID so results do not depend on store ordering.
type projection struct {
	ids []string
	// directed link graph for PageRank, weighted by the number of
	// relations between the ordered pair
	directed *simple.WeightedDirectedGraph
	// undirected weighted graph for community detection
	undirected *simple.WeightedUndirectedGraph
	pairs      int // undirected node pairs with at least one relation
	dropped    int // edges that reference an unknown node
	loops      int // self-relations, which neither algorithm uses
}

func project(nodes []types.Node, edges []types.Edge) *projection {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	index := make(map[string]int64, len(ids))
	p := &projection{
		ids:        ids,
		directed:   simple.NewWeightedDirectedGraph(0, 0),
		undirected: simple.NewWeightedUndirectedGraph(0, 0),
	}
	for i, id := range ids {
		index[id] = int64(i)
		p.directed.AddNode(simple.Node(i))
		p.undirected.AddNode(simple.Node(i))
	}

	type pair struct{ from, to int64 }
	out := make(map[pair]float64)
	und := make(map[pair]float64)
	for _, e := range edges {
		from, okF := index[e.FromID]
		to, okT := index[e.ToID]
		switch {
		case !okF || !okT:
			p.dropped++
			continue
		case from == to:
			p.loops++
			continue
		}
		out[pair{from, to}]++
		if from > to {
			from, to = to, from
		}
		und[pair{from, to}]++
	}

	for k, w := range out {
		p.directed.SetWeightedEdge(p.directed.NewWeightedEdge(simple.Node(k.from), simple.Node(k.to), w))
	}
	for k, w := range und {
		p.undirected.SetWeightedEdge(p.undirected.NewWeightedEdge(simple.Node(k.from), simple.Node(k.to), w))
	}
	p.pairs = len(und)
	return p
}
