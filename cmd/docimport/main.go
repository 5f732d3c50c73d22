// Command docimport loads JSON lines documents into one collection of the document store.
//
// Every line is upserted through the repository, so ids and unique key aliases resolve exactly like
// writes that arrive over the HTTP API. Change events are not emitted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/config"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/postgresengine"
)

const (
	driverPGX  = "pgx"
	driverSQL  = "sql"
	driverSQLX = "sqlx"
)

func main() {
	var (
		file         = flag.String("file", "", "JSON lines file to import, one document per line")
		databaseName = flag.String("database", "", "target database name")
		entityName   = flag.String("entity", "", "target entity name")
		driver       = flag.String("driver", driverPGX, "database driver: pgx, sql or sqlx")
	)

	flag.Parse()

	if err := run(*file, *databaseName, *entityName, *driver); err != nil {
		log.Fatalf("Error importing documents: %v", err)
	}
}

func run(file, databaseName, entityName, driver string) error {
	startTime := time.Now()

	if file == "" || databaseName == "" || entityName == "" {
		return fmt.Errorf("-file, -database and -entity are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	fmt.Printf("Connecting to database with %s driver...", driver)
	repository, closeDB, err := connect(ctx, cfg, driver)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer closeDB()
	fmt.Println(" done")

	fmt.Printf("Ensuring schema of table %s...", repository.TableName())
	if err = repository.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	fmt.Println(" done")

	source, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer func() { _ = source.Close() }()

	fmt.Printf("Importing %s into %s/%s...", file, databaseName, entityName)
	importStart := time.Now()

	result, err := importDocuments(ctx, repository, source, databaseName, entityName)
	if err != nil {
		return err
	}
	fmt.Printf(" done %v\n", time.Since(importStart).Round(time.Millisecond))

	fmt.Println()
	fmt.Printf("Documents imported: %s\n", formatNumber(result.imported))
	fmt.Printf("Empty lines skipped: %d\n", result.skipped)
	fmt.Printf("Total time: %v\n", time.Since(startTime).Round(time.Millisecond))

	return nil
}

func connect(ctx context.Context, cfg config.Config, driver string) (*postgresengine.Repository, func(), error) {
	options := []postgresengine.Option{postgresengine.WithTableName(cfg.TableName)}

	switch driver {
	case driverPGX:
		pool, err := config.NewPGXPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}

		repository, err := postgresengine.NewRepositoryFromPGXPool(pool, options...)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		return repository, pool.Close, nil

	case driverSQL:
		db, err := config.OpenSQLDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}

		repository, err := postgresengine.NewRepositoryFromSQLDB(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return repository, func() { _ = db.Close() }, nil

	case driverSQLX:
		db, err := config.OpenSQLX(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}

		repository, err := postgresengine.NewRepositoryFromSQLX(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return repository, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q", driver)
	}
}

func formatNumber(n int) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000.0)
	} else if n >= 10000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}

	return strconv.Itoa(n)
}
