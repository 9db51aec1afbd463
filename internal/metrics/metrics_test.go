package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.RunStarted()
	m.RunStarted()
	m.RunFinished("done", "")
	m.RunFinished("failed", "SourceUnavailable")
	m.QuestionGroup(true)
	m.QuestionGroup(false)
	m.QuestionGroup(true)
	m.ObserveStage("FETCHING", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsFinished.WithLabelValues("failed", "SourceUnavailable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.questionGroups.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RunStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "docset_runs_started_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
