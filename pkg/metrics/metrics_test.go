package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New("relay")

	r.Session(nil, time.Second)
	r.Session(errors.New("boom"), time.Second)
	r.Round()
	r.Round()
	r.ToolCall("list_files", false)
	r.ToolCall("list_files", true)
	r.ToolCall("list_files", false)
	r.Connection(nil)
	r.Connection(errors.New("refused"))
	r.ModelRequest(nil, 200*time.Millisecond)
	r.Tokens(10, 4)

	assert.InDelta(t, 1, testutil.ToFloat64(r.sessionsTotal.WithLabelValues(StatusOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.sessionsTotal.WithLabelValues(StatusError)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.roundsTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.toolCallsTotal.WithLabelValues("list_files", StatusOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.toolCallsTotal.WithLabelValues("list_files", StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.connectionsTotal.WithLabelValues(StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.modelRequestsTotal.WithLabelValues(StatusOK)), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(r.tokensTotal.WithLabelValues("input")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(r.tokensTotal.WithLabelValues("output")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.sessionDuration))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New("relay"), New("relay")

	a.Round()

	assert.InDelta(t, 1, testutil.ToFloat64(a.roundsTotal), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.roundsTotal), 0)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.Session(nil, time.Second)
		r.Round()
		r.ToolCall("x", true)
		r.Connection(nil)
		r.ModelRequest(nil, time.Second)
		r.Tokens(1, 1)
	})
	assert.Nil(t, r.Registry())
}

func TestHandler(t *testing.T) {
	r := New("relay")
	r.Round()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "relay_rounds_total 1")
}
