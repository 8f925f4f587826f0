package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		r := Default()
		r.IncDocuments(OutcomeProcessed)
		r.AddTriplets(OutcomeAccepted, 3)
		r.IncChunks(OutcomeFailed)
		TimeOracleCall(r)(true)
	})
}

func TestSetRecorder(t *testing.T) {
	p := NewPrometheus()
	SetRecorder(p)
	t.Cleanup(func() { SetRecorder(nil) })

	assert.Same(t, p, Default())
	SetRecorder(nil)
	assert.Equal(t, Noop(), Default())
}

func TestPrometheusCounters(t *testing.T) {
	p := NewPrometheus()
	p.IncDocuments(OutcomeProcessed)
	p.IncDocuments(OutcomeSkipped)
	p.IncDocuments(OutcomeSkipped)
	p.AddTriplets(OutcomeWritten, 4)
	p.AddTriplets(OutcomeRejected, 0)
	p.IncChunks(OutcomeOK)

	got := map[string]float64{}
	families, err := p.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			key := mf.GetName() + "/" + m.GetLabel()[0].GetValue()
			got[key] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, 1.0, got["ontograph_documents_total/processed"])
	assert.Equal(t, 2.0, got["ontograph_documents_total/skipped"])
	assert.Equal(t, 4.0, got["ontograph_triplets_total/written"])
	assert.Equal(t, 1.0, got["ontograph_chunks_total/ok"])
	_, rejected := got["ontograph_triplets_total/rejected"]
	assert.False(t, rejected)
}

func TestHandler(t *testing.T) {
	p := NewPrometheus()
	p.IncDocuments(OutcomeProcessed)
	p.ObserveOracleCall(true, 0.2)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), `ontograph_documents_total{outcome="processed"} 1`)
	assert.Contains(t, string(body), "ontograph_oracle_call_seconds_bucket")
}
