package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("boom")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	InputChunksTotal.WithLabelValues("sent").Inc()
	RemoteCallDuration.WithLabelValues("write_input").Observe(0.01)

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `rterm_input_chunks_total{status="sent"}`)
	assert.Contains(t, string(body), "rterm_remote_call_duration_seconds_bucket")
}

func TestCollectors_Lint(t *testing.T) {
	problems, err := testutil.CollectAndLint(ConnectAttemptsTotal)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(DisconnectsTotal.WithLabelValues("exit"))
	DisconnectsTotal.WithLabelValues("exit").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DisconnectsTotal.WithLabelValues("exit")))
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
