package promadapters_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore/promadapters"
)

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)
	labels := map[string]string{"error_type": "duplicate_key", "operation": "upsert"}

	// act
	collector.IncrementCounter("docsync_database_errors_total", labels)
	collector.IncrementCounter("docsync_database_errors_total", labels)
	collector.IncrementCounter("docsync_database_errors_total", map[string]string{"error_type": "timeout", "operation": "upsert"})

	// assert
	count, err := testutil.GatherAndCount(registry, "docsync_database_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	expected := `
# HELP docsync_database_errors_total docsync database errors total
# TYPE docsync_database_errors_total counter
docsync_database_errors_total{error_type="duplicate_key",operation="upsert"} 2
docsync_database_errors_total{error_type="timeout",operation="upsert"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "docsync_database_errors_total"))
}

func Test_MetricsCollector_RecordValue_SetsTheGauge(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.RecordValue("docsync_documents_returned", 12, map[string]string{"operation": "get_all"})
	collector.RecordValue("docsync_documents_returned", 4, map[string]string{"operation": "get_all"})

	// assert
	expected := `
# HELP docsync_documents_returned docsync documents returned
# TYPE docsync_documents_returned gauge
docsync_documents_returned{operation="get_all"} 4
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "docsync_documents_returned"))
}

func Test_MetricsCollector_RecordDuration_ObservesSeconds(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry, promadapters.WithBuckets([]float64{0.3, 1}))

	// act
	collector.RecordDuration("docsync_query_duration_seconds", 250*time.Millisecond, map[string]string{"operation": "get_all"})
	collector.RecordDuration("docsync_query_duration_seconds", 500*time.Millisecond, map[string]string{"operation": "get_all"})

	// assert
	expected := `
# HELP docsync_query_duration_seconds docsync query duration seconds
# TYPE docsync_query_duration_seconds histogram
docsync_query_duration_seconds_bucket{operation="get_all",le="0.3"} 1
docsync_query_duration_seconds_bucket{operation="get_all",le="1"} 2
docsync_query_duration_seconds_bucket{operation="get_all",le="+Inf"} 2
docsync_query_duration_seconds_sum{operation="get_all"} 0.75
docsync_query_duration_seconds_count{operation="get_all"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "docsync_query_duration_seconds"))
}

func Test_MetricsCollector_When_LabelsDifferFromTheFirstMeasurement(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("docsync_identity_merges_total", map[string]string{"entity_name": "Invoice"})
	collector.IncrementCounter("docsync_identity_merges_total", map[string]string{"database_name": "sales"})

	// assert
	expected := `
# HELP docsync_identity_merges_total docsync identity merges total
# TYPE docsync_identity_merges_total counter
docsync_identity_merges_total{entity_name=""} 1
docsync_identity_merges_total{entity_name="Invoice"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "docsync_identity_merges_total"))
}

func Test_MetricsCollector_SharesVectorsAcrossCollectorsOnOneRegistry(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	first := promadapters.NewMetricsCollector(registry)
	second := promadapters.NewMetricsCollector(registry)
	labels := map[string]string{"type_name": "Invoice"}

	// act
	first.IncrementCounter("docsync_cache_conflicts_total", labels)
	second.IncrementCounter("docsync_cache_conflicts_total", labels)

	// assert
	expected := `
# HELP docsync_cache_conflicts_total docsync cache conflicts total
# TYPE docsync_cache_conflicts_total counter
docsync_cache_conflicts_total{type_name="Invoice"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "docsync_cache_conflicts_total"))
}

func Test_Handler_ServesTheRegistry(t *testing.T) {
	// setup
	registry := promadapters.NewRegistry()
	promadapters.NewMetricsCollector(registry).IncrementCounter("docsync_cache_conflicts_total", nil)

	server := httptest.NewServer(promadapters.Handler(registry))
	t.Cleanup(server.Close)

	// act
	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "docsync_cache_conflicts_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
