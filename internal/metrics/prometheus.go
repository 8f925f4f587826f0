package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus is a Recorder backed by its own registry.
type Prometheus struct {
	registry      *prom.Registry
	documents     *prom.CounterVec
	triplets      *prom.CounterVec
	chunks        *prom.CounterVec
	oracleSeconds *prom.HistogramVec
}

// NewPrometheus creates a recorder with the ontograph_* collectors registered
// on a fresh registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prom.NewRegistry(),
		documents: prom.NewCounterVec(prom.CounterOpts{
			Name: "ontograph_documents_total",
			Help: "Documents seen by the ingestion orchestrator, by outcome",
		}, []string{"outcome"}),
		triplets: prom.NewCounterVec(prom.CounterOpts{
			Name: "ontograph_triplets_total",
			Help: "Candidate triplets, by outcome",
		}, []string{"outcome"}),
		chunks: prom.NewCounterVec(prom.CounterOpts{
			Name: "ontograph_chunks_total",
			Help: "Extraction chunks, by outcome",
		}, []string{"outcome"}),
		oracleSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "ontograph_oracle_call_seconds",
			Help:    "Extraction oracle call duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"success"}),
	}
	p.registry.MustRegister(p.documents, p.triplets, p.chunks, p.oracleSeconds)
	return p
}

func (p *Prometheus) IncDocuments(outcome string) {
	p.documents.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) AddTriplets(outcome string, n int) {
	if n <= 0 {
		return
	}
	p.triplets.WithLabelValues(outcome).Add(float64(n))
}

func (p *Prometheus) IncChunks(outcome string) {
	p.chunks.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveOracleCall(success bool, seconds float64) {
	p.oracleSeconds.WithLabelValues(strconv.FormatBool(success)).Observe(seconds)
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prom.Registry { return p.registry }

// Handler serves /metrics from the recorder's registry and /healthz.
func (p *Prometheus) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

var _ Recorder = (*Prometheus)(nil)
