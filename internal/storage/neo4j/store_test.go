package neo4j

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/ontograph/internal/config"
	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

// newTestStore connects to ONTOGRAPH_TEST_NEO4J_URI and wipes the database;
// tests are skipped when it is not set.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("ONTOGRAPH_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("ONTOGRAPH_TEST_NEO4J_URI not set; skipping Neo4j integration tests")
	}
	cfg := config.Neo4jConfig{
		URI:      uri,
		Username: envOr("ONTOGRAPH_TEST_NEO4J_USERNAME", "neo4j"),
		Password: envOr("ONTOGRAPH_TEST_NEO4J_PASSWORD", "password"),
		Database: envOr("ONTOGRAPH_TEST_NEO4J_DATABASE", "neo4j"),
	}

	ctx := context.Background()
	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = store.write(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, "MATCH (n) WHERE n:Entity OR n:Document DETACH DELETE n", nil)
		return nil, err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestOpen_RejectsBadScheme(t *testing.T) {
	_, err := Open(context.Background(), config.Neo4jConfig{URI: "http://localhost:7474", Username: "neo4j", Password: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestOpen_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := Open(ctx, config.Neo4jConfig{URI: "bolt://127.0.0.1:1", Username: "neo4j", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestGraphRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.UpsertNode(ctx, "TECHNOLOGY", "Tidal Generator", map[string]interface{}{"source": "sea.txt"})
	require.NoError(t, err)
	again, err := store.UpsertNode(ctx, "technology", "Tidal Generator", nil)
	require.NoError(t, err)
	assert.Equal(t, a, again)

	b, err := store.UpsertNode(ctx, "LOCATION", "Bay Of Fundy", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpsertEdge(ctx, a, b, "LOCATED_IN"))
	require.NoError(t, store.UpsertEdge(ctx, a, b, "LOCATED_IN"))
	assert.ErrorIs(t, store.UpsertEdge(ctx, a, "ent:NOPE:0", "LOCATED_IN"), storage.ErrNotFound)

	nodes, err := store.Nodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	edges, err := store.Edges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Edge{{FromID: a, ToID: b, Type: "LOCATED_IN"}}, edges)

	require.NoError(t, store.SetNodeAnalytics(ctx, a, 0.5, 2))
	found, err := store.SearchNodes(ctx, "tidal", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "sea.txt", found[0].Properties["source"])
	require.NotNil(t, found[0].PageRank)
	assert.InDelta(t, 0.5, *found[0].PageRank, 1e-9)

	facts, err := store.Neighbors(ctx, b, 5)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "Tidal Generator -[LOCATED_IN]-> Bay Of Fundy", facts[0].String())
}

func TestInTxRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.InTx(ctx, func(g storage.GraphStore) error {
		if _, err := g.UpsertNode(ctx, "TECHNOLOGY", "Flywheel", nil); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	nodes, err := store.Nodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestDocumentRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	hash := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	_, err := store.QueryByHash(ctx, hash)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.WriteDocumentRecord(ctx, types.DocumentRecord{ContentHash: hash, Filename: "a.txt"}))
	require.NoError(t, store.WriteDocumentRecord(ctx, types.DocumentRecord{ContentHash: hash, Filename: "b.txt"}))

	rec, err := store.QueryByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", rec.Filename)
	assert.False(t, rec.IngestedAt.IsZero())
}
