package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderExposesCollectors(t *testing.T) {
	r := New()
	r.ObserveStage("retrieval", 20*time.Millisecond)
	r.Fallback("HYBRID_SEARCH_ALSO_EMPTY")
	r.Result("success")
	r.DedupDecision("slack", "already_processing")
	r.DedupLeaked("teams", 2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `askdocs_pipeline_fallback_total{reason="HYBRID_SEARCH_ALSO_EMPTY"} 1`)
	assert.Contains(t, out, `askdocs_dedup_decisions_total{decision="already_processing",platform="slack"} 1`)
	assert.Contains(t, out, `askdocs_dedup_leaked_total{platform="teams"} 2`)
	assert.Contains(t, out, `askdocs_pipeline_stage_seconds_count{stage="retrieval"} 1`)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveStage("x", time.Second)
	r.Fallback("x")
	r.Result("x")
	r.DedupDecision("x", "y")
	r.DedupLeaked("x", 1)
	assert.NotNil(t, r.Handler())
}
