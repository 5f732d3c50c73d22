package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/config"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/postgresengine"
)

// Engine type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

const (
	envAdapterType = "ADAPTER_TYPE"
	envTestDSN     = "DOCSYNC_TEST_DSN"
	connectTimeout = 3 * time.Second
)

// Wrapper abstracts over the different connection types.
type Wrapper interface {
	GetRepository() *postgresengine.Repository
	Exec(query string) error
	Close()
}

// PGXPoolWrapper wraps a pgxpool-based repository.
type PGXPoolWrapper struct {
	pool *pgxpool.Pool
	repo *postgresengine.Repository
}

func (w *PGXPoolWrapper) GetRepository() *postgresengine.Repository { return w.repo }

func (w *PGXPoolWrapper) Exec(query string) error {
	_, err := w.pool.Exec(context.Background(), query)
	return err
}

func (w *PGXPoolWrapper) Close() { w.pool.Close() }

// SQLDBWrapper wraps a sql.DB-based repository.
type SQLDBWrapper struct {
	db   *sql.DB
	repo *postgresengine.Repository
}

func (w *SQLDBWrapper) GetRepository() *postgresengine.Repository { return w.repo }

func (w *SQLDBWrapper) Exec(query string) error {
	_, err := w.db.Exec(query)
	return err
}

func (w *SQLDBWrapper) Close() { _ = w.db.Close() }

// SQLXWrapper wraps a sqlx.DB-based repository.
type SQLXWrapper struct {
	db   *sqlx.DB
	repo *postgresengine.Repository
}

func (w *SQLXWrapper) GetRepository() *postgresengine.Repository { return w.repo }

func (w *SQLXWrapper) Exec(query string) error {
	_, err := w.db.Exec(query)
	return err
}

func (w *SQLXWrapper) Close() { _ = w.db.Close() }

// TestDSN returns the DSN of the test database.
func TestDSN() string {
	if dsn := os.Getenv(envTestDSN); dsn != "" {
		return dsn
	}

	return config.PostgresDefaultDSN()
}

// CreateWrapperWithTestConfig opens a repository on the test database, ensures its schema and
// registers the cleanup. It skips the test when the database cannot be reached.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var wrapper Wrapper

	switch adapterType := strings.ToLower(os.Getenv(envAdapterType)); adapterType {
	case typePGXPool, "":
		pool, err := config.NewPGXPool(ctx, TestDSN())
		if err != nil {
			t.Skipf("test database unreachable: %v", err)
		}

		repo, err := postgresengine.NewRepositoryFromPGXPool(pool, options...)
		require.NoError(t, err, "error creating repository")
		wrapper = &PGXPoolWrapper{pool: pool, repo: repo}

	case typeSQLDB:
		db, err := config.OpenSQLDB(ctx, TestDSN())
		if err != nil {
			t.Skipf("test database unreachable: %v", err)
		}

		repo, err := postgresengine.NewRepositoryFromSQLDB(db, options...)
		require.NoError(t, err, "error creating repository")
		wrapper = &SQLDBWrapper{db: db, repo: repo}

	case typeSQLXDB:
		db, err := config.OpenSQLX(ctx, TestDSN())
		if err != nil {
			t.Skipf("test database unreachable: %v", err)
		}

		repo, err := postgresengine.NewRepositoryFromSQLX(db, options...)
		require.NoError(t, err, "error creating repository")
		wrapper = &SQLXWrapper{db: db, repo: repo}

	default:
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterType))
	}

	require.NoError(t, wrapper.GetRepository().EnsureSchema(ctx), "error ensuring the schema")
	t.Cleanup(wrapper.Close)

	return wrapper
}

// CleanUpDatabase removes every document stored under databaseName.
func CleanUpDatabase(t testing.TB, wrapper Wrapper, databaseName string) {
	t.Helper()

	query := fmt.Sprintf(
		"DELETE FROM %s WHERE database_name = '%s'",
		wrapper.GetRepository().TableName(),
		strings.ReplaceAll(databaseName, "'", "''"),
	)

	require.NoError(t, wrapper.Exec(query), "error cleaning up the documents table")
}
