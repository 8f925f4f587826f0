package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/ontograph/internal/document"
	"github.com/scrypster/ontograph/internal/extract"
	"github.com/scrypster/ontograph/internal/llm"
	"github.com/scrypster/ontograph/internal/ontology"
	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/internal/storage/sqlite"
	"github.com/scrypster/ontograph/pkg/types"
)

// countingOracle proposes triplets based on keywords in the chunk.
type countingOracle struct {
	calls    atomic.Int32
	checkErr error
}

func (o *countingOracle) Check(context.Context) error { return o.checkErr }

func (o *countingOracle) ExtractTriplets(_ context.Context, chunk string, _, _ []string, _ int) ([]types.Triplet, error) {
	o.calls.Add(1)
	var out []types.Triplet
	if strings.Contains(chunk, "Solar") {
		out = append(out,
			triplet("solar panel", "TECHNOLOGY", "USES", "silicon", "MATERIAL"),
			triplet("Silicon", "MATERIAL", "USES", "Sand", "MATERIAL"),
		)
	}
	if strings.Contains(chunk, "Wind") {
		out = append(out, triplet("wind turbine", "TECHNOLOGY", "USES", "steel", "MATERIAL"))
	}
	return out, nil
}

func triplet(subj, subjType, rel, obj, objType string) types.Triplet {
	return types.Triplet{
		Subject:  types.Entity{Name: subj, Type: subjType},
		Relation: rel,
		Object:   types.Entity{Name: obj, Type: objType},
	}
}

func testExtractor(t *testing.T, oracle extract.Oracle) *extract.Extractor {
	t.Helper()
	onto, err := ontology.New(ontology.Source{
		EntityTypes:      []string{"TECHNOLOGY", "MATERIAL"},
		RelationTypes:    []string{"USES"},
		ValidationSchema: map[string][]string{"TECHNOLOGY": {"USES"}},
	})
	require.NoError(t, err)
	return extract.New(oracle, onto, extract.Options{ChunkBudget: 5, Parallelism: 1, MaxRetries: -1})
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIngest_PersistsTripletsAndRecords(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	oracle := &countingOracle{}
	dir := writeCorpus(t, map[string]string{
		"a.txt": "Solar panels convert light using silicon.",
		"b.txt": "Wind turbines are built from steel.",
	})

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := NewIngestor(store, store, testExtractor(t, oracle), IngestorOptions{Now: func() time.Time { return at }})

	sum, err := in.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.DocumentsProcessed)
	assert.Equal(t, 0, sum.DocumentsSkipped)
	assert.Equal(t, 2, sum.TripletsWritten)
	assert.Equal(t, 1, sum.TripletsRejected)
	assert.Equal(t, 0, sum.ChunksFailed)

	nodes, err := store.Nodes(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Type+":"+n.Name)
	}
	assert.ElementsMatch(t, []string{
		"TECHNOLOGY:Solar Panel", "MATERIAL:Silicon",
		"TECHNOLOGY:Wind Turbine", "MATERIAL:Steel",
	}, names)

	edges, err := store.Edges(ctx)
	require.NoError(t, err)
	assert.Contains(t, edges, types.Edge{
		FromID: types.NodeID("TECHNOLOGY", "Solar Panel"),
		ToID:   types.NodeID("MATERIAL", "Silicon"),
		Type:   "USES",
	})
	assert.Len(t, edges, 2)

	rec, err := store.QueryByHash(ctx, document.Fingerprint("Solar panels convert light using silicon."))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", rec.Filename)
	assert.True(t, rec.IngestedAt.Equal(at))
}

func TestIngest_SecondRunSkipsEverything(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	oracle := &countingOracle{}
	dir := writeCorpus(t, map[string]string{
		"a.txt": "Solar panels convert light using silicon.",
		"b.txt": "Wind turbines are built from steel.",
	})
	in := NewIngestor(store, store, testExtractor(t, oracle), IngestorOptions{})

	_, err := in.Ingest(ctx, dir)
	require.NoError(t, err)
	callsAfterFirst := oracle.calls.Load()
	nodesBefore, edgesBefore, err := store.Counts(ctx)
	require.NoError(t, err)

	// The oracle is now broken; a run with nothing to do must not need it.
	oracle.checkErr = errors.New("no api key")
	sum, err := in.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.DocumentsProcessed)
	assert.Equal(t, 2, sum.DocumentsSkipped)
	assert.Equal(t, 0, sum.TripletsWritten)
	assert.Equal(t, callsAfterFirst, oracle.calls.Load())

	nodesAfter, edgesAfter, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, nodesBefore, nodesAfter)
	assert.Equal(t, edgesBefore, edgesAfter)
	docs, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, docs)
}

func TestIngest_FrontmatterEditIsNewContent(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	oracle := &countingOracle{}
	dir := writeCorpus(t, map[string]string{
		"solar.md": "---\ntags: [draft]\n---\nSolar panels convert light using silicon.",
	})
	in := NewIngestor(store, store, testExtractor(t, oracle), IngestorOptions{})

	sum, err := in.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DocumentsProcessed)

	// Only the frontmatter changes; the extracted text stays the same.
	edited := "---\ntags: [published]\n---\nSolar panels convert light using silicon."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solar.md"), []byte(edited), 0o644))

	sum, err = in.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DocumentsProcessed)
	assert.Equal(t, 0, sum.DocumentsSkipped)

	_, err = store.QueryByHash(ctx, document.Fingerprint(edited))
	require.NoError(t, err)
	docs, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, docs)
}

func TestIngest_DuplicateContentIsSkipped(t *testing.T) {
	store := newSQLite(t)
	oracle := &countingOracle{}
	dir := writeCorpus(t, map[string]string{
		"a.txt": "Solar panels convert light using silicon.",
		"copy.txt": "Solar panels convert light using silicon.",
	})
	in := NewIngestor(store, store, testExtractor(t, oracle), IngestorOptions{})

	sum, err := in.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DocumentsProcessed)
	assert.Equal(t, 1, sum.DocumentsSkipped)
	assert.Equal(t, int32(1), oracle.calls.Load())
}

func TestIngest_EmptyDocumentIsRecorded(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	oracle := &countingOracle{}
	dir := writeCorpus(t, map[string]string{"blank.txt": "   \n\n  "})
	in := NewIngestor(store, store, testExtractor(t, oracle), IngestorOptions{})

	sum, err := in.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DocumentsProcessed)
	assert.Equal(t, int32(0), oracle.calls.Load())

	_, err = store.QueryByHash(ctx, document.Fingerprint("   \n\n  "))
	assert.NoError(t, err)
}

func TestIngest_CorpusNotFound(t *testing.T) {
	store := newSQLite(t)
	in := NewIngestor(store, store, testExtractor(t, &countingOracle{}), IngestorOptions{})

	sum, err := in.Ingest(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrCorpusNotFound)
	require.NotNil(t, sum)
	assert.Equal(t, 0, sum.DocumentsProcessed)

	_, err = in.Ingest(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrCorpusNotFound)
}

func TestIngest_OracleUnavailableIsFatal(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	oracle := &countingOracle{checkErr: errors.New("OPENAI_API_KEY not set")}
	dir := writeCorpus(t, map[string]string{"a.txt": "Solar panels convert light using silicon."})
	in := NewIngestor(store, store, testExtractor(t, oracle), IngestorOptions{})

	sum, err := in.Ingest(ctx, dir)
	assert.ErrorIs(t, err, extract.ErrOracleUnavailable)
	assert.Equal(t, 0, sum.DocumentsProcessed)
	assert.Equal(t, int32(0), oracle.calls.Load())

	docs, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, docs)
}

// throttledOracle answers 429 for chunks mentioning a throttled keyword
// until healed, and otherwise behaves like countingOracle.
type throttledOracle struct {
	countingOracle
	keyword string
	healed  atomic.Bool
}

func (o *throttledOracle) ExtractTriplets(ctx context.Context, chunk string, e, r []string, n int) ([]types.Triplet, error) {
	if !o.healed.Load() && strings.Contains(chunk, o.keyword) {
		o.calls.Add(1)
		return nil, fmt.Errorf("openai returned status 429: %w", llm.ErrRateLimited)
	}
	return o.countingOracle.ExtractTriplets(ctx, chunk, e, r, n)
}

func TestIngest_RateLimitedDocumentDoesNotStopTheRun(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	oracle := &throttledOracle{keyword: "Wind"}
	dir := writeCorpus(t, map[string]string{
		"a.txt": "Wind turbines are built from steel.",
		"b.txt": "Solar panels convert light using silicon.",
	})
	in := NewIngestor(store, store, testExtractor(t, oracle), IngestorOptions{})

	sum, err := in.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.DocumentsProcessed)
	assert.Equal(t, 1, sum.DocumentsIncomplete)
	assert.Equal(t, 1, sum.ChunksFailed)
	assert.Equal(t, 1, sum.TripletsWritten)

	// Only the complete document is marked as ingested.
	docs, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)

	oracle.healed.Store(true)
	sum, err = in.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DocumentsProcessed)
	assert.Equal(t, 1, sum.DocumentsSkipped)
	assert.Equal(t, 0, sum.DocumentsIncomplete)
	assert.Equal(t, 1, sum.TripletsWritten)

	docs, err = store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, docs)
}

// edgeFailingStore fails every edge write inside transactions.
type edgeFailingStore struct {
	*sqlite.Store
}

type edgeFailingGraph struct {
	storage.GraphStore
}

var errDiskFull = errors.New("disk full")

func (edgeFailingGraph) UpsertEdge(context.Context, string, string, string) error { return errDiskFull }

func (s edgeFailingStore) InTx(ctx context.Context, fn func(storage.GraphStore) error) error {
	return s.Store.InTx(ctx, func(g storage.GraphStore) error {
		return fn(edgeFailingGraph{GraphStore: g})
	})
}

func TestIngest_WriteFailureRollsBackAndLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	dir := writeCorpus(t, map[string]string{"a.txt": "Solar panels convert light using silicon."})

	failing := edgeFailingStore{Store: store}
	in := NewIngestor(failing, store, testExtractor(t, &countingOracle{}), IngestorOptions{})
	sum, err := in.Ingest(ctx, dir)
	require.ErrorIs(t, err, errDiskFull)
	assert.Contains(t, err.Error(), "a.txt")
	assert.Equal(t, 0, sum.DocumentsProcessed)
	assert.Equal(t, 0, sum.TripletsWritten)

	nodes, edges, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, nodes)
	assert.Zero(t, edges)
	_, err = store.QueryByHash(ctx, document.Fingerprint("Solar panels convert light using silicon."))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// A healthy retry picks the document up again.
	in = NewIngestor(store, store, testExtractor(t, &countingOracle{}), IngestorOptions{})
	sum, err = in.Ingest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DocumentsProcessed)
	assert.Equal(t, 1, sum.TripletsWritten)
}

func TestIngest_Cancelled(t *testing.T) {
	store := newSQLite(t)
	oracle := &countingOracle{}
	dir := writeCorpus(t, map[string]string{"a.txt": "Solar panels convert light using silicon."})
	in := NewIngestor(store, store, testExtractor(t, oracle), IngestorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.Ingest(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), oracle.calls.Load())
}

// memGraph is a non-transactional store that counts node upserts.
type memGraph struct {
	mu          sync.Mutex
	nodeUpserts map[string]int
	edges       map[types.Edge]struct{}
	docs        map[string]types.DocumentRecord
	embeddings  map[string][]float32
}

func newMemGraph() *memGraph {
	return &memGraph{
		nodeUpserts: map[string]int{},
		edges:       map[types.Edge]struct{}{},
		docs:        map[string]types.DocumentRecord{},
		embeddings:  map[string][]float32{},
	}
}

func (m *memGraph) UpsertNode(_ context.Context, entityType, name string, _ map[string]interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := types.NodeID(entityType, name)
	m.nodeUpserts[id]++
	return id, nil
}

func (m *memGraph) UpsertEdge(_ context.Context, fromID, toID, relType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[types.Edge{FromID: fromID, ToID: toID, Type: relType}] = struct{}{}
	return nil
}

func (m *memGraph) Close() error { return nil }

func (m *memGraph) QueryByHash(_ context.Context, hash string) (*types.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.docs[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &rec, nil
}

func (m *memGraph) WriteDocumentRecord(_ context.Context, rec types.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[rec.ContentHash] = rec
	return nil
}

func (m *memGraph) SetNodeEmbedding(_ context.Context, id string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[id] = vec
	return nil
}

func (m *memGraph) SimilarNodes(context.Context, []float32, int) ([]types.Node, error) {
	return nil, nil
}

func TestIngest_NodeCacheAvoidsRepeatedUpserts(t *testing.T) {
	graph := newMemGraph()
	dir := writeCorpus(t, map[string]string{
		"a.txt": "Solar panels convert light using silicon.",
		"b.txt": "Solar cells also depend on silicon wafers.",
	})
	in := NewIngestor(graph, graph, testExtractor(t, &countingOracle{}), IngestorOptions{})

	sum, err := in.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.DocumentsProcessed)
	assert.Equal(t, 2, sum.TripletsWritten)
	assert.Equal(t, 1, graph.nodeUpserts[types.NodeID("TECHNOLOGY", "Solar Panel")])
	assert.Equal(t, 1, graph.nodeUpserts[types.NodeID("MATERIAL", "Silicon")])
	assert.Len(t, graph.edges, 1)
	assert.Len(t, graph.docs, 2)
}

type fakeEmbedder struct {
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embed" }

func TestIngest_EmbedsNewNodes(t *testing.T) {
	graph := newMemGraph()
	emb := &fakeEmbedder{}
	dir := writeCorpus(t, map[string]string{"a.txt": "Wind turbines are built from steel."})
	in := NewIngestor(graph, graph, testExtractor(t, &countingOracle{}), IngestorOptions{Embedder: emb})

	_, err := in.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Wind Turbine (TECHNOLOGY)", "Steel (MATERIAL)"}, emb.texts)
	assert.Len(t, graph.embeddings, 2)
	assert.Contains(t, graph.embeddings, types.NodeID("MATERIAL", "Steel"))
}
