// Package engine orchestrates ingestion: it walks a corpus, skips documents
// whose content was already ingested, extracts triplets from the rest and
// persists them before marking each document as done.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/ontograph/internal/document"
	"github.com/scrypster/ontograph/internal/extract"
	"github.com/scrypster/ontograph/internal/llm"
	"github.com/scrypster/ontograph/internal/metrics"
	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

// ErrCorpusNotFound is returned when the corpus directory is missing or has
// no readable documents.
var ErrCorpusNotFound = document.ErrCorpusNotFound

// DefaultNodeCacheSize bounds the per-run cache of committed node IDs.
const DefaultNodeCacheSize = 4096

// IngestorOptions configures an Ingestor. Zero values take defaults.
type IngestorOptions struct {
	NodeCacheSize int
	Metrics       metrics.Recorder

	// Embedder, when set and the graph store implements storage.NodeEmbedder,
	// is used to embed every node created during a run.
	Embedder llm.EmbeddingGenerator

	// Now stamps document records. Defaults to time.Now.
	Now func() time.Time
}

// Summary reports one Ingest run. It is returned even when the run fails,
// reflecting the work completed before the failure.
type Summary struct {
	RunID              string
	DocumentsProcessed int
	DocumentsSkipped   int
	// DocumentsIncomplete counts processed documents that lost chunks to
	// oracle failures. They keep their partial triplets but get no record,
	// so the next run extracts them again.
	DocumentsIncomplete int
	TripletsWritten     int
	TripletsRejected    int
	ChunksFailed        int
	Duration            time.Duration
}

// Ingestor runs idempotent ingestion of a corpus into a graph store. Runs
// must not overlap.
type Ingestor struct {
	graph  storage.GraphStore
	docs   storage.DocumentStore
	ext    *extract.Extractor
	writer *batchWriter
	opts   IngestorOptions
}

// NewIngestor wires an Ingestor. docs may be the graph store itself when it
// also keeps document records.
func NewIngestor(graph storage.GraphStore, docs storage.DocumentStore, ext *extract.Extractor, opts IngestorOptions) *Ingestor {
	if opts.NodeCacheSize <= 0 {
		opts.NodeCacheSize = DefaultNodeCacheSize
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	in := &Ingestor{
		graph:  graph,
		docs:   docs,
		ext:    ext,
		writer: newBatchWriter(graph, opts.NodeCacheSize),
		opts:   opts,
	}
	if opts.Embedder != nil {
		if ne, ok := graph.(storage.NodeEmbedder); ok {
			in.writer.embed = newNodeEmbedder(ne, opts.Embedder)
		} else {
			slog.Info("engine: graph store has no vector support, node embeddings disabled")
		}
	}
	return in
}

// Ingest processes every document of corpusDir in name order. A document
// whose fingerprint already has a record is skipped without extraction.
// Otherwise its accepted triplets are persisted and only then is its record
// written, so an interrupted document is simply retried by the next run.
// Chunks the oracle failed on are dropped and the run moves on; their
// document is left without a record.
//
// Structural failures (store errors, an unavailable oracle, cancellation)
// stop the run; the partial summary is returned with the error.
func (in *Ingestor) Ingest(ctx context.Context, corpusDir string) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: uuid.NewString()}
	defer func() { sum.Duration = time.Since(start) }()

	docs, err := document.LoadCorpus(corpusDir)
	if err != nil {
		return sum, err
	}

	in.writer.reset()
	log := slog.With("run", sum.RunID)
	log.Info("engine: ingestion started", "corpus", corpusDir, "documents", len(docs))

	preflighted := false
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		hash := doc.ContentHash()
		done, err := in.alreadyIngested(ctx, hash)
		if err != nil {
			in.opts.Metrics.IncDocuments(metrics.OutcomeFailed)
			return sum, fmt.Errorf("engine: %s: %w", doc.Filename, err)
		}
		if done {
			log.Debug("engine: document already ingested", "file", doc.Filename, "hash", hash)
			in.opts.Metrics.IncDocuments(metrics.OutcomeSkipped)
			sum.DocumentsSkipped++
			continue
		}

		// The oracle is only checked once there is real work for it.
		if !preflighted {
			if err := in.ext.Preflight(ctx); err != nil {
				return sum, err
			}
			preflighted = true
		}

		if err := in.ingestDocument(ctx, doc, hash, sum); err != nil {
			in.opts.Metrics.IncDocuments(metrics.OutcomeFailed)
			return sum, fmt.Errorf("engine: %s: %w", doc.Filename, err)
		}
		in.opts.Metrics.IncDocuments(metrics.OutcomeProcessed)
		sum.DocumentsProcessed++
	}

	log.Info("engine: ingestion finished",
		"processed", sum.DocumentsProcessed,
		"skipped", sum.DocumentsSkipped,
		"incomplete", sum.DocumentsIncomplete,
		"written", sum.TripletsWritten,
		"rejected", sum.TripletsRejected,
		"chunks_failed", sum.ChunksFailed,
	)
	return sum, nil
}

func (in *Ingestor) alreadyIngested(ctx context.Context, hash string) (bool, error) {
	_, err := in.docs.QueryByHash(ctx, hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("query document record: %w", err)
	}
}

func (in *Ingestor) ingestDocument(ctx context.Context, doc document.Document, hash string, sum *Summary) error {
	working := document.Normalize(doc.Text)

	buf := &tripletBuffer{}
	res, err := in.ext.ExtractDocument(ctx, doc.Filename, working, buf)
	if res != nil {
		sum.TripletsRejected += res.Rejected
		sum.ChunksFailed += res.ChunksFailed
	}
	if err != nil {
		return err
	}

	written, err := in.writer.write(ctx, buf.triplets)
	if err != nil {
		return err
	}
	sum.TripletsWritten += written
	in.opts.Metrics.AddTriplets(metrics.OutcomeWritten, written)

	if res.ChunksFailed > 0 {
		sum.DocumentsIncomplete++
		slog.Warn("engine: document incomplete, will be retried next run", "file", doc.Filename,
			"triplets", written, "chunks", res.Chunks, "chunks_failed", res.ChunksFailed)
		return nil
	}

	rec := types.DocumentRecord{ContentHash: hash, Filename: doc.Filename, IngestedAt: in.opts.Now()}
	if err := in.docs.WriteDocumentRecord(ctx, rec); err != nil {
		return fmt.Errorf("write document record: %w", err)
	}

	slog.Debug("engine: document ingested", "file", doc.Filename, "triplets", written,
		"rejected", res.Rejected, "chunks", res.Chunks, "chunks_failed", res.ChunksFailed)
	return nil
}

// tripletBuffer collects one document's accepted triplets. The extractor
// serializes Accept calls.
type tripletBuffer struct {
	triplets []types.Triplet
}

func (b *tripletBuffer) Accept(_ string, triplets []types.Triplet) {
	b.triplets = append(b.triplets, triplets...)
}
