// Package oteladapters implements the docstore observability interfaces on top of OpenTelemetry.
//
// Wire them into the repository, the cache service and the HTTP handler:
//
//	meter := otel.Meter("docsync")
//	tracer := otel.Tracer("docsync")
//
//	repo, _ := postgresengine.NewRepositoryFromPGXPool(pool,
//		postgresengine.WithMetrics(oteladapters.NewMetricsCollector(meter)),
//		postgresengine.WithTracing(oteladapters.NewTracingCollector(tracer)),
//		postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("docsync")),
//	)
package oteladapters
