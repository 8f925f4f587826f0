package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/ontograph/internal/llm"
	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

// batchWriter persists a document's triplets as one unit: subject node,
// object node, then the edge, for each triplet in order.
type batchWriter struct {
	graph storage.GraphStore
	// nodes maps committed merge keys to node IDs.
	nodes *lru.Cache[string, string]
	embed *nodeEmbedder
}

func newBatchWriter(graph storage.GraphStore, cacheSize int) *batchWriter {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		// Only possible for a non-positive size, which NewIngestor rules out.
		panic(fmt.Sprintf("engine: node cache: %v", err))
	}
	return &batchWriter{graph: graph, nodes: cache}
}

func (w *batchWriter) reset() {
	w.nodes.Purge()
}

// write persists triplets and returns how many were written. With a
// transactional store the whole batch commits or nothing does; nodes are
// cached only after a successful commit.
func (w *batchWriter) write(ctx context.Context, triplets []types.Triplet) (int, error) {
	if len(triplets) == 0 {
		return 0, nil
	}

	var created map[string]types.Entity
	persist := func(g storage.GraphStore) error {
		created = make(map[string]types.Entity)
		ids := make(map[string]string)
		for _, t := range triplets {
			fromID, err := w.upsertNode(ctx, g, t.Subject, ids, created)
			if err != nil {
				return err
			}
			toID, err := w.upsertNode(ctx, g, t.Object, ids, created)
			if err != nil {
				return err
			}
			if err := g.UpsertEdge(ctx, fromID, toID, t.Relation); err != nil {
				return fmt.Errorf("upsert edge %s: %w", t, err)
			}
		}
		return nil
	}

	var err error
	if tx, ok := w.graph.(storage.Transactor); ok {
		err = tx.InTx(ctx, persist)
	} else {
		err = persist(w.graph)
	}
	if err != nil {
		return 0, err
	}

	for id, e := range created {
		w.nodes.Add(mergeKey(e), id)
	}
	if w.embed != nil {
		w.embed.embedNodes(ctx, created)
	}
	return len(triplets), nil
}

func (w *batchWriter) upsertNode(ctx context.Context, g storage.GraphStore, e types.Entity, ids map[string]string, created map[string]types.Entity) (string, error) {
	key := mergeKey(e)
	if id, ok := ids[key]; ok {
		return id, nil
	}
	if id, ok := w.nodes.Get(key); ok {
		ids[key] = id
		return id, nil
	}

	id, err := g.UpsertNode(ctx, e.Type, e.Name, nil)
	if err != nil {
		return "", fmt.Errorf("upsert node %s (%s): %w", e.Name, e.Type, err)
	}
	ids[key] = id
	created[id] = e
	return id, nil
}

func mergeKey(e types.Entity) string {
	return e.Type + "\x00" + e.Name
}

// nodeEmbedder stores one embedding per node. Failures are logged and never
// fail ingestion; a store that reports no vector support disables it.
type nodeEmbedder struct {
	store    storage.NodeEmbedder
	gen      llm.EmbeddingGenerator
	disabled bool
}

func newNodeEmbedder(store storage.NodeEmbedder, gen llm.EmbeddingGenerator) *nodeEmbedder {
	return &nodeEmbedder{store: store, gen: gen}
}

func (n *nodeEmbedder) embedNodes(ctx context.Context, nodes map[string]types.Entity) {
	for id, e := range nodes {
		if n.disabled || ctx.Err() != nil {
			return
		}
		vec, err := n.gen.Embed(ctx, EmbeddingText(e))
		if err != nil {
			slog.Warn("engine: node embedding failed", "node", id, "error", err)
			continue
		}
		if err := n.store.SetNodeEmbedding(ctx, id, vec); err != nil {
			if errors.Is(err, storage.ErrNotSupported) {
				slog.Info("engine: store has no vector support, node embeddings disabled")
				n.disabled = true
				return
			}
			slog.Warn("engine: storing node embedding failed", "node", id, "error", err)
		}
	}
}

// EmbeddingText is the text embedded for a node. Queries embed questions
// into the same space.
func EmbeddingText(e types.Entity) string {
	return e.Name + " (" + e.Type + ")"
}
