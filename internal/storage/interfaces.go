// Package storage defines the persistence surface of the pipeline as small,
// focused interfaces. Backends implement the subset they can support; callers
// discover optional capabilities (transactions, analytics write-back, vector
// search) with type assertions.
package storage

import (
	"context"

	"github.com/scrypster/ontograph/pkg/types"
)

// GraphStore persists typed nodes and edges.
type GraphStore interface {
	// UpsertNode merges a node on (entityType, name) and returns its ID.
	// name must already be normalized. props, when non-nil, replace the
	// node's stored properties.
	UpsertNode(ctx context.Context, entityType, name string, props map[string]interface{}) (string, error)

	// UpsertEdge merges a directed edge; edges are unique on (from, to, type).
	UpsertEdge(ctx context.Context, fromID, toID, relType string) error

	// Close releases the store's resources.
	Close() error
}

// DocumentStore is the idempotency store: one record per ingested content hash.
type DocumentStore interface {
	// QueryByHash returns ErrNotFound when no record exists for hash.
	QueryByHash(ctx context.Context, hash string) (*types.DocumentRecord, error)

	// WriteDocumentRecord upserts rec keyed by its ContentHash.
	WriteDocumentRecord(ctx context.Context, rec types.DocumentRecord) error
}

// Transactor is implemented by stores that can run a batch of graph writes
// atomically. The GraphStore passed to fn is only valid inside fn.
type Transactor interface {
	InTx(ctx context.Context, fn func(GraphStore) error) error
}

// GraphReader provides read access for analytics and querying.
type GraphReader interface {
	Nodes(ctx context.Context) ([]types.Node, error)
	Edges(ctx context.Context) ([]types.Edge, error)

	// SearchNodes finds nodes whose name contains term (case-insensitive),
	// highest PageRank first.
	SearchNodes(ctx context.Context, term string, limit int) ([]types.Node, error)

	// Neighbors returns the facts touching nodeID in either direction.
	Neighbors(ctx context.Context, nodeID string, limit int) ([]Fact, error)
}

// AnalyticsWriter stores analytics results on nodes.
type AnalyticsWriter interface {
	SetNodeAnalytics(ctx context.Context, nodeID string, pageRank float64, communityID int64) error
}

// NodeEmbedder stores and searches node embeddings. Stores without vector
// support return ErrNotSupported.
type NodeEmbedder interface {
	SetNodeEmbedding(ctx context.Context, nodeID string, embedding []float32) error
	SimilarNodes(ctx context.Context, embedding []float32, limit int) ([]types.Node, error)
}

// Fact is an edge with both endpoint nodes resolved.
type Fact struct {
	From     types.Node
	Relation string
	To       types.Node
}

// String renders the fact as "From -[REL]-> To".
func (f Fact) String() string {
	return f.From.Name + " -[" + f.Relation + "]-> " + f.To.Name
}
