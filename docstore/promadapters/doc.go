// Package promadapters implements docstore.MetricsCollector on the Prometheus client and serves the
// collected metrics for scraping.
//
// Vectors are created on the first measurement of a metric name, so the repository, the cache
// service and the HTTP API can share one collector without declaring their metrics upfront:
//
//	registry := promadapters.NewRegistry()
//	repo, err := postgresengine.NewRepositoryFromPGXPool(pool,
//		postgresengine.WithMetrics(promadapters.NewMetricsCollector(registry)),
//	)
//	mux.Handle("/metrics", promadapters.Handler(registry))
package promadapters
