package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

const testHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestUpsertNode_MergesOnTypeAndName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertNode(ctx, "technology", "Solar Panel", nil)
	require.NoError(t, err)
	id2, err := store.UpsertNode(ctx, "TECHNOLOGY", "Solar Panel", map[string]interface{}{"source": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, types.NodeID("TECHNOLOGY", "Solar Panel"), id1)

	// Same name, different type is a different node.
	id3, err := store.UpsertNode(ctx, "CONCEPT", "Solar Panel", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)

	nodes, err := store.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	n, err := store.Node(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "TECHNOLOGY", n.Type)
	assert.Equal(t, "a.txt", n.Properties["source"])

	// nil props keep what is stored.
	_, err = store.UpsertNode(ctx, "TECHNOLOGY", "Solar Panel", nil)
	require.NoError(t, err)
	n, err = store.Node(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", n.Properties["source"])
}

func TestUpsertNode_InvalidInput(t *testing.T) {
	store := newTestStore(t)
	_, err := store.UpsertNode(context.Background(), "", "x", nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	_, err = store.UpsertNode(context.Background(), "TECHNOLOGY", "  ", nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestUpsertEdge_Unique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.UpsertNode(ctx, "TECHNOLOGY", "Wind Turbine", nil)
	b, _ := store.UpsertNode(ctx, "MATERIAL", "Steel", nil)

	require.NoError(t, store.UpsertEdge(ctx, a, b, "USES"))
	require.NoError(t, store.UpsertEdge(ctx, a, b, "USES"))
	require.NoError(t, store.UpsertEdge(ctx, a, b, "PRODUCES"))

	edges, err := store.Edges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	assert.ErrorIs(t, store.UpsertEdge(ctx, a, b, "uses"), storage.ErrInvalidInput)
	assert.Error(t, store.UpsertEdge(ctx, a, "ent:MISSING:0", "USES"))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(g storage.GraphStore) error {
		if _, err := g.UpsertNode(ctx, "TECHNOLOGY", "Dam", nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	nodes, err := store.Nodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	err = store.InTx(ctx, func(g storage.GraphStore) error {
		a, err := g.UpsertNode(ctx, "TECHNOLOGY", "Dam", nil)
		if err != nil {
			return err
		}
		b, err := g.UpsertNode(ctx, "CONCEPT", "Hydropower", nil)
		if err != nil {
			return err
		}
		return g.UpsertEdge(ctx, a, b, "PRODUCES")
	})
	require.NoError(t, err)

	n, e, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, e)
}

func TestDocumentRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.QueryByHash(ctx, testHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.WriteDocumentRecord(ctx, types.DocumentRecord{ContentHash: testHash, Filename: "a.txt", IngestedAt: first}))

	rec, err := store.QueryByHash(ctx, testHash)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", rec.Filename)
	assert.True(t, rec.IngestedAt.Equal(first))

	// Upsert refreshes instead of duplicating.
	second := first.Add(time.Hour)
	require.NoError(t, store.WriteDocumentRecord(ctx, types.DocumentRecord{ContentHash: testHash, Filename: "b.txt", IngestedAt: second}))
	rec, err = store.QueryByHash(ctx, testHash)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", rec.Filename)
	assert.True(t, rec.IngestedAt.Equal(second))

	n, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = store.WriteDocumentRecord(ctx, types.DocumentRecord{ContentHash: strings.ToUpper(testHash)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSearchAndNeighbors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	panel, _ := store.UpsertNode(ctx, "TECHNOLOGY", "Solar Panel", nil)
	farm, _ := store.UpsertNode(ctx, "TECHNOLOGY", "Solar Farm", nil)
	silicon, _ := store.UpsertNode(ctx, "MATERIAL", "Silicon", nil)
	pct, _ := store.UpsertNode(ctx, "MATERIAL", "100%_Pure", nil)
	require.NoError(t, store.UpsertEdge(ctx, panel, silicon, "USES"))
	require.NoError(t, store.UpsertEdge(ctx, farm, panel, "USES"))

	require.NoError(t, store.SetNodeAnalytics(ctx, farm, 0.4, 1))
	require.NoError(t, store.SetNodeAnalytics(ctx, panel, 0.2, 1))

	found, err := store.SearchNodes(ctx, "solar", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Solar Farm", found[0].Name)
	require.NotNil(t, found[0].PageRank)
	assert.InDelta(t, 0.4, *found[0].PageRank, 1e-9)

	found, err = store.SearchNodes(ctx, "%", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, pct, found[0].ID)

	found, err = store.SearchNodes(ctx, "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	facts, err := store.Neighbors(ctx, panel, 10)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "Solar Farm -[USES]-> Solar Panel", facts[0].String())
	assert.Equal(t, "Solar Panel -[USES]-> Silicon", facts[1].String())

	assert.ErrorIs(t, store.SetNodeAnalytics(ctx, "ent:NOPE:0", 1, 1), storage.ErrNotFound)
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.UpsertNode(ctx, "TECHNOLOGY", "Battery", nil)
	require.NoError(t, err)

	snapDir := filepath.Join(dir, "snapshots")
	var paths []string
	for i := 0; i < 3; i++ {
		p, err := store.Snapshot(ctx, snapDir, 2)
		require.NoError(t, err)
		paths = append(paths, p)
		time.Sleep(2 * time.Millisecond)
	}

	snaps, err := ListSnapshots(snapDir, "graph")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, paths[2], snaps[0].Path)

	restored, err := Open(ctx, snaps[0].Path)
	require.NoError(t, err)
	defer restored.Close()
	nodes, err := restored.Nodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	mem := newTestStore(t)
	_, err = mem.Snapshot(ctx, snapDir, 0)
	assert.ErrorIs(t, err, storage.ErrNotSupported)
}

func TestDBPathFromDSN(t *testing.T) {
	assert.Equal(t, "", dbPathFromDSN(":memory:"))
	assert.Equal(t, "", dbPathFromDSN("file::memory:?cache=shared"))
	assert.Equal(t, "/tmp/x.db", dbPathFromDSN("/tmp/x.db"))
	assert.Equal(t, "/tmp/x.db", dbPathFromDSN("file:/tmp/x.db?mode=rwc"))
}

func TestIsRecoverableWALError(t *testing.T) {
	assert.False(t, isRecoverableWALError(nil))
	assert.True(t, isRecoverableWALError(errors.New("disk I/O error (5898)")))
	assert.True(t, isRecoverableWALError(errors.New("database is locked")))
	assert.False(t, isRecoverableWALError(errors.New("no such table")))
}
