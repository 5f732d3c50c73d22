// Package postgresengine provides a PostgreSQL implementation of docstore.Repository.
//
// Documents of every collection live in one JSONB table, keyed by database name, entity name
// and primary key. Filters are translated to JSONB containment, existence and typed comparison
// expressions. The repository works with pgx pools, database/sql and sqlx.
//
// Upserts resolve document identity through the primary key and the alias list, and are
// serialized per process. Every successful write queues change events on the configured EventQueue.
//
// Usage examples:
//
//	pool, _ := pgxpool.New(context.Background(), dsn)
//	repo, _ := postgresengine.NewRepositoryFromPGXPool(
//		pool,
//		postgresengine.WithTableName("documents"),
//		postgresengine.WithLogger(logger),
//		postgresengine.WithEventQueue(hub),
//	)
//	_ = repo.EnsureSchema(ctx)
//
//	doc, _ := repo.Upsert(ctx, "sales", "Invoice", "A", docstore.Document{"total": 10}, docstore.UpsertOptions{})
//	docs, _ := repo.GetByFilter(ctx, "sales", "Invoice", docstore.GreaterLong("total", 5))
package postgresengine
