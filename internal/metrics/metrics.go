// Package metrics provides the pipeline's instrumentation surface: a small
// Recorder interface with a no-op default and a Prometheus implementation.
package metrics

import (
	"sync"
	"time"
)

// Outcome labels shared by the counters.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeWritten   = "written"
	OutcomeOK        = "ok"
)

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	IncDocuments(outcome string)
	AddTriplets(outcome string, n int)
	IncChunks(outcome string)
	ObserveOracleCall(success bool, seconds float64)
}

type noopRecorder struct{}

func (noopRecorder) IncDocuments(string)              {}
func (noopRecorder) AddTriplets(string, int)          {}
func (noopRecorder) IncChunks(string)                 {}
func (noopRecorder) ObserveOracleCall(bool, float64) {}

// Noop returns a Recorder that discards everything.
func Noop() Recorder { return noopRecorder{} }

var (
	recMu    sync.RWMutex
	recorder Recorder = noopRecorder{}
)

// Default returns the current process-wide recorder.
func Default() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

// SetRecorder swaps the process-wide recorder. A nil r restores the no-op.
func SetRecorder(r Recorder) {
	recMu.Lock()
	defer recMu.Unlock()
	if r == nil {
		r = noopRecorder{}
	}
	recorder = r
}

// TimeOracleCall starts timing one oracle call on r.
func TimeOracleCall(r Recorder) func(success bool) {
	start := time.Now()
	return func(success bool) {
		r.ObserveOracleCall(success, time.Since(start).Seconds())
	}
}
