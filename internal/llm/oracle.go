package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scrypster/ontograph/pkg/types"
)

// TripletOracle turns a TextGenerator into an extraction oracle: it prompts
// for schema-typed triplets and parses the reply into candidates. It does
// not validate against the ontology; that is the extractor's job.
type TripletOracle struct {
	gen TextGenerator
}

// NewTripletOracle wraps gen as an extraction oracle.
func NewTripletOracle(gen TextGenerator) *TripletOracle {
	return &TripletOracle{gen: gen}
}

// ExtractTriplets asks the model for at most maxTriplets triplets typed from
// the given sets. Provider errors are returned unchanged so callers can
// detect ErrRateLimited.
func (o *TripletOracle) ExtractTriplets(ctx context.Context, chunk string, entityTypes, relationTypes []string, maxTriplets int) ([]types.Triplet, error) {
	prompt := TripletExtractionPrompt(chunk, entityTypes, relationTypes, maxTriplets)

	raw, err := o.gen.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	triplets, err := ParseTripletResponse(raw)
	if err != nil {
		slog.Debug("llm: unparseable triplet response", "model", o.gen.GetModel(), "response", truncate(raw, 200))
		return nil, fmt.Errorf("%s: %w", o.gen.GetModel(), err)
	}
	return triplets, nil
}

// Check delegates to the wrapped generator when it supports checking.
func (o *TripletOracle) Check(ctx context.Context) error {
	if c, ok := o.gen.(Checker); ok {
		return c.Check(ctx)
	}
	return nil
}

// Model returns the underlying model name.
func (o *TripletOracle) Model() string {
	return o.gen.GetModel()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
