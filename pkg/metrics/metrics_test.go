package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservations(t *testing.T) {
	m := New()

	m.ObserveArtifact("account", "ok")
	m.ObserveArtifact("account", "ok")
	m.ObserveArtifact("tag", "skip_duplicate")
	m.ObserveDownload("ok", 1024, time.Second)
	m.ObserveDownload("not_ok", 0, time.Second)
	m.ObserveRetry("network")
	m.ObservePage("account")
	m.ObserveRunError("integrity")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArtifactsTotal.WithLabelValues("account", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactsTotal.WithLabelValues("tag", "skip_duplicate")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.DownloadBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("network")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesFetched.WithLabelValues("account")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunErrors.WithLabelValues("integrity")))
}

func TestInstancesDoNotShareRegistry(t *testing.T) {
	a, b := New(), New()
	a.ObservePage("tag")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PagesFetched.WithLabelValues("tag")))
}

func TestRouter(t *testing.T) {
	m := New()
	m.ObservePage("feed")
	srv := httptest.NewServer(Router(m))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `artsync_pages_fetched_total{kind="feed"} 1`)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
