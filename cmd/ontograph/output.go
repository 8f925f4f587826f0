package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/scrypster/ontograph/internal/analytics"
	"github.com/scrypster/ontograph/internal/engine"
)

func printError(w io.Writer, err error) {
	color.New(color.FgRed).Fprintf(w, "error: %v\n", err)
}

func printIngestSummary(w io.Writer, sum *engine.Summary, err error) {
	if sum == nil {
		return
	}
	title := color.New(color.FgGreen, color.Bold)
	if err != nil {
		title = color.New(color.FgRed, color.Bold)
	}
	title.Fprintf(w, "Ingestion run %s\n", sum.RunID)
	fmt.Fprintf(w, "  Documents processed: %d\n", sum.DocumentsProcessed)
	fmt.Fprintf(w, "  Documents skipped:   %d\n", sum.DocumentsSkipped)
	fmt.Fprintf(w, "  Triplets written:    %d\n", sum.TripletsWritten)

	warn := color.New(color.FgYellow)
	rejected := fmt.Sprintf("  Triplets rejected:   %d\n", sum.TripletsRejected)
	failed := fmt.Sprintf("  Chunks failed:       %d\n", sum.ChunksFailed)
	if sum.TripletsRejected > 0 {
		warn.Fprint(w, rejected)
	} else {
		fmt.Fprint(w, rejected)
	}
	if sum.ChunksFailed > 0 {
		warn.Fprint(w, failed)
		warn.Fprintf(w, "  Incomplete documents: %d (retried next run)\n", sum.DocumentsIncomplete)
	} else {
		fmt.Fprint(w, failed)
	}
	fmt.Fprintf(w, "  Duration:            %s\n", sum.Duration.Round(time.Millisecond))
}

func printAnalyticsSummary(w io.Writer, sum *analytics.Summary, err error) {
	if sum == nil {
		return
	}
	if sum.Status == analytics.StatusEmpty {
		color.New(color.FgYellow).Fprintln(w, "Graph is empty. Run ingestion first: ontograph ingest")
		return
	}
	title := color.New(color.FgGreen, color.Bold)
	if err != nil {
		title = color.New(color.FgRed, color.Bold)
	}
	title.Fprintln(w, "Graph enrichment")
	fmt.Fprintf(w, "  Nodes processed:   %d\n", sum.NodesProcessed)
	fmt.Fprintf(w, "  Nodes written:     %d\n", sum.NodesWritten)
	fmt.Fprintf(w, "  PageRank:          min=%.4f max=%.4f mean=%.4f\n", sum.ScoreMin, sum.ScoreMax, sum.ScoreMean)
	fmt.Fprintf(w, "  Communities found: %d (modularity %.4f)\n", sum.Communities, sum.Modularity)
	fmt.Fprintf(w, "  Compute / write:   %s / %s\n", sum.ComputeDuration.Round(time.Millisecond), sum.WriteDuration.Round(time.Millisecond))
}
