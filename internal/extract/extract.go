// Package extract turns document text into schema-valid triplets. Text is
// chunked, each chunk is sent to an extraction oracle by a bounded worker
// pool, and every candidate is checked against the ontology before it is
// handed to the caller's sink.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/scrypster/ontograph/internal/document"
	"github.com/scrypster/ontograph/internal/llm"
	"github.com/scrypster/ontograph/internal/metrics"
	"github.com/scrypster/ontograph/internal/ontology"
	"github.com/scrypster/ontograph/pkg/types"
)

// ErrOracleUnavailable is returned when the oracle cannot be used at all:
// its preflight check failed, it rejected the credentials, or its circuit
// breaker is open. Any other chunk failure only drops that chunk.
var ErrOracleUnavailable = errors.New("extraction oracle unavailable")

// Oracle proposes candidate triplets for one chunk of text.
type Oracle interface {
	ExtractTriplets(ctx context.Context, chunk string, entityTypes, relationTypes []string, maxTriplets int) ([]types.Triplet, error)
}

// Sink receives accepted triplets as each chunk completes. Calls are
// serialized by the extractor, so implementations need no locking.
type Sink interface {
	Accept(source string, triplets []types.Triplet)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(source string, triplets []types.Triplet)

// Accept calls f.
func (f SinkFunc) Accept(source string, triplets []types.Triplet) { f(source, triplets) }

// Options tunes extraction. Zero values take defaults, except ChunkOverlap
// where zero means no overlap; a negative overlap is treated as zero.
type Options struct {
	ChunkBudget       int           // max triplets kept per chunk (default 2)
	Parallelism       int           // concurrent oracle calls (default 4)
	ChunkSize         int           // tokens (default 512)
	ChunkOverlap      int           // tokens (configuration default 20)
	ChunkTimeout      time.Duration // per oracle call (default 90s)
	MaxRetries        int           // retries on rate limiting (default 3, negative disables)
	RetryBackoff      time.Duration // first backoff, doubled per retry (default 500ms)
	RequestsPerSecond float64       // 0 means unlimited
	Metrics           metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.ChunkBudget <= 0 {
		o.ChunkBudget = 2
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = llm.DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = 90 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Default()
	}
	return o
}

// Result summarizes one Extract or ExtractText call.
type Result struct {
	Accepted     []types.Triplet
	Rejected     int
	Chunks       int
	ChunksFailed int
}

func (r *Result) merge(other *Result) {
	r.Accepted = append(r.Accepted, other.Accepted...)
	r.Rejected += other.Rejected
	r.Chunks += other.Chunks
	r.ChunksFailed += other.ChunksFailed
}

// Extractor runs schema-constrained extraction. It is safe for sequential
// reuse; each call has its own worker pool.
type Extractor struct {
	oracle  Oracle
	onto    *ontology.Ontology
	opts    Options
	chunker *llm.Chunker
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates an Extractor bound to one ontology.
func New(oracle Oracle, onto *ontology.Ontology, opts Options) *Extractor {
	opts = opts.withDefaults()
	e := &Extractor{
		oracle:  oracle,
		onto:    onto,
		opts:    opts,
		chunker: llm.NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		sleep:   sleepCtx,
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return e
}

// Preflight runs the oracle's Check when it has one. A failure is wrapped in
// ErrOracleUnavailable.
func (e *Extractor) Preflight(ctx context.Context) error {
	c, ok := e.oracle.(llm.Checker)
	if !ok {
		return nil
	}
	if err := c.Check(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	return nil
}

// Extract processes docs one after another. It stops at the first fatal
// error and returns what was gathered so far alongside it.
func (e *Extractor) Extract(ctx context.Context, docs []document.Document, sink Sink) (*Result, error) {
	total := &Result{}
	if err := e.Preflight(ctx); err != nil {
		return total, err
	}
	for _, doc := range docs {
		res, err := e.extract(ctx, doc.Filename, doc.Text, sink)
		total.merge(res)
		if err != nil {
			return total, fmt.Errorf("%s: %w", doc.Filename, err)
		}
	}
	return total, nil
}

// ExtractText processes a single text.
func (e *Extractor) ExtractText(ctx context.Context, text string, sink Sink) (*Result, error) {
	if err := e.Preflight(ctx); err != nil {
		return &Result{}, err
	}
	return e.extract(ctx, "", text, sink)
}

// ExtractDocument processes one text without a preflight check. Callers that
// loop over many documents run Preflight once themselves.
func (e *Extractor) ExtractDocument(ctx context.Context, source, text string, sink Sink) (*Result, error) {
	return e.extract(ctx, source, text, sink)
}

func (e *Extractor) extract(ctx context.Context, source, text string, sink Sink) (*Result, error) {
	chunks := e.chunker.Chunk(text)
	res := &Result{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return res, nil
	}

	entityTypes := e.onto.EntityTypes()
	relationTypes := e.onto.RelationTypes()

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)

	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			candidates, err := e.callWithRetry(gctx, chunk, entityTypes, relationTypes)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if oracleDown(err) {
					return fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
				}
				if gctx.Err() != nil {
					// A sibling chunk found the oracle down.
					return nil
				}
				slog.Warn("extract: chunk failed", "source", source, "chunk", i, "error", err)
				e.opts.Metrics.IncChunks(metrics.OutcomeFailed)
				mu.Lock()
				res.ChunksFailed++
				mu.Unlock()
				return nil
			}
			e.opts.Metrics.IncChunks(metrics.OutcomeOK)

			if len(candidates) > e.opts.ChunkBudget {
				candidates = candidates[:e.opts.ChunkBudget]
			}
			accepted, rejected := e.validate(candidates)
			e.opts.Metrics.AddTriplets(metrics.OutcomeAccepted, len(accepted))
			e.opts.Metrics.AddTriplets(metrics.OutcomeRejected, rejected)

			mu.Lock()
			defer mu.Unlock()
			res.Rejected += rejected
			res.Accepted = append(res.Accepted, accepted...)
			if sink != nil && len(accepted) > 0 {
				sink.Accept(source, accepted)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// oracleDown reports whether a chunk error means no further call can
// succeed, as opposed to a failure of that one chunk.
func oracleDown(err error) bool {
	return errors.Is(err, llm.ErrUnauthorized) || errors.Is(err, llm.ErrCircuitOpen)
}

// callWithRetry calls the oracle under the per-chunk timeout. Rate limiting
// is retried with exponential backoff up to MaxRetries; any other error is
// retried once.
func (e *Extractor) callWithRetry(ctx context.Context, chunk string, entityTypes, relationTypes []string) ([]types.Triplet, error) {
	backoff := e.opts.RetryBackoff
	otherRetried := false

	for attempt := 0; ; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		triplets, err := e.call(ctx, chunk, entityTypes, relationTypes)
		if err == nil {
			return triplets, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case errors.Is(err, llm.ErrRateLimited):
			if attempt >= e.opts.MaxRetries {
				return nil, err
			}
			slog.Debug("extract: rate limited, backing off", "attempt", attempt+1, "backoff", backoff)
			if err := e.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		case errors.Is(err, llm.ErrUnauthorized), otherRetried:
			return nil, err
		default:
			otherRetried = true
		}
	}
}

func (e *Extractor) call(ctx context.Context, chunk string, entityTypes, relationTypes []string) ([]types.Triplet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ChunkTimeout)
	defer cancel()

	done := metrics.TimeOracleCall(e.opts.Metrics)
	triplets, err := e.oracle.ExtractTriplets(ctx, chunk, entityTypes, relationTypes, e.opts.ChunkBudget)
	done(err == nil)
	return triplets, err
}

// validate applies strict extraction. Accepted triplets come back with
// normalized names and uppercased types.
func (e *Extractor) validate(candidates []types.Triplet) ([]types.Triplet, int) {
	accepted := make([]types.Triplet, 0, len(candidates))
	rejected := 0
	for _, c := range candidates {
		t := types.Triplet{
			Subject:  types.Entity{Name: document.Normalize(c.Subject.Name), Type: strings.ToUpper(strings.TrimSpace(c.Subject.Type))},
			Relation: strings.ToUpper(strings.TrimSpace(c.Relation)),
			Object:   types.Entity{Name: document.Normalize(c.Object.Name), Type: strings.ToUpper(strings.TrimSpace(c.Object.Type))},
		}
		if t.Subject.Name == "" || t.Object.Name == "" {
			slog.Debug("extract: rejected triplet with empty name", "triplet", c.String())
			rejected++
			continue
		}
		if err := e.onto.Validate(t); err != nil {
			slog.Debug("extract: rejected triplet", "triplet", c.String(), "reason", err)
			rejected++
			continue
		}
		accepted = append(accepted, t)
	}
	return accepted, rejected
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
