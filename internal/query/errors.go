package query

import (
	"errors"
	"log/slog"

	"github.com/scrypster/ontograph/internal/llm"
	"github.com/scrypster/ontograph/internal/storage"
)

// FriendlyError turns an Ask failure into a message for the operator.
func FriendlyError(err error) string {
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		slog.Error("query: graph store connection lost", "error", err)
		return "Database Connection Lost\n\n" +
			"Unable to reach the graph store. Please ensure:\n" +
			"1. The database is running\n" +
			"2. It has finished starting (wait ~30 seconds)\n" +
			"3. The connection settings in .env are correct"
	case errors.Is(err, llm.ErrRateLimited):
		slog.Error("query: rate limit exceeded", "error", err)
		return "Rate Limit Exceeded\n\n" +
			"The language model provider is throttling requests. Please:\n" +
			"1. Wait a moment before trying again\n" +
			"2. Check your API quota with the provider\n" +
			"3. Consider a higher usage tier if this persists"
	case errors.Is(err, ErrEmptyGraph):
		return "Knowledge Graph Empty\n\nNothing has been ingested yet. Run `ontograph ingest` first."
	case errors.Is(err, llm.ErrUnauthorized), errors.Is(err, llm.ErrMissingAPIKey), errors.Is(err, llm.ErrCircuitOpen):
		slog.Error("query: language model unavailable", "error", err)
		return "Language Model Unavailable\n\n" + err.Error()
	default:
		slog.Error("query: failed", "error", err)
		return "Query Failed\n\nAn unexpected error occurred: " + err.Error()
	}
}
