package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	r := NewRecorder(nil)
	ctx := context.Background()

	r.Observe(ctx, "add_child", true, 3*time.Millisecond)
	r.Observe(ctx, "add_child", true, time.Millisecond)
	r.Observe(ctx, "add_child", false, time.Millisecond)
	r.Observe(ctx, "", true, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.operations.WithLabelValues("add_child", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.operations.WithLabelValues("add_child", "error")))
}

func TestGaugesAndCounters(t *testing.T) {
	r := NewRecorder(nil)

	r.SetRemoteAvailable(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.remoteAvailable))
	r.SetRemoteAvailable(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(r.remoteAvailable))

	r.SetOutboxDepth(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(r.outboxDepth))

	r.PersistError("quota_exceeded")
	r.RemoteWrite("insert_child", false)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.persistErrors.WithLabelValues("quota_exceeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.remoteWrites.WithLabelValues("insert_child", "error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder(nil)
	r.RemoteWrite("delete_record", true)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `habitpoints_remote_writes_total{operation="delete_record",result="success"} 1`)
}
