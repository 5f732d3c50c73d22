package adapters

import "context"

// DBAdapter runs rendered SQL. Query may be routed to a replica, Exec always hits the primary.
type DBAdapter interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBRows is a forward-only result set.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult reports the effect of an Exec.
type DBResult interface {
	RowsAffected() (int64, error)
}
