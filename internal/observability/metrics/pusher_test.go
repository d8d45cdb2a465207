package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPusherSelectsExporter(t *testing.T) {
	log := zap.NewNop()

	p, err := NewPusher(PushConfig{}, log)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewPusher(PushConfig{Exporter: ExporterPrometheusRemoteWrite, Endpoint: "http://collector/api/v1/write"}, log)
	require.NoError(t, err)
	assert.IsType(t, &RemoteWritePusher{}, p)

	p, err = NewPusher(PushConfig{Exporter: ExporterPrometheusPushgateway, Endpoint: "http://gateway:9091"}, log)
	require.NoError(t, err)
	assert.IsType(t, &PushgatewayPusher{}, p)

	_, err = NewPusher(PushConfig{Exporter: ExporterPrometheusRemoteWrite}, log)
	assert.Error(t, err)

	_, err = NewPusher(PushConfig{Exporter: "statsd", Endpoint: "udp://x"}, log)
	assert.Error(t, err)
}

func TestRemoteWritePusherSendsCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg, Config{ServiceName: "aurum", Environment: "test"})
	m.ObserveReconcile("drift")
	m.ObserveMutation("payment", time.Millisecond, nil)

	var (
		got     prompb.WriteRequest
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		assert.NoError(t, err)
		assert.NoError(t, got.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewRemoteWritePusher(srv.URL, "secret")
	p.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	require.NoError(t, p.Push(context.Background(), reg))

	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))

	var found bool
	for _, ts := range got.Timeseries {
		if labelValue(ts.Labels, "__name__") != "aurum_ledger_reconciliations_total" {
			continue
		}
		found = true
		assert.Equal(t, "drift", labelValue(ts.Labels, "result"))
		require.Len(t, ts.Samples, 1)
		assert.Equal(t, 1.0, ts.Samples[0].Value)
		assert.Equal(t, int64(1_700_000_000_000), ts.Samples[0].Timestamp)
	}
	assert.True(t, found)

	for _, ts := range got.Timeseries {
		assert.NotEqual(t, "aurum_ledger_mutation_duration_seconds", labelValue(ts.Labels, "__name__"))
	}
}

func TestRemoteWritePusherReportsHTTPFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewLedgerMetrics(reg, Config{}).ObserveReconcile("in_sync")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), reg)
	assert.ErrorContains(t, err, "502")
}

func labelValue(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}
