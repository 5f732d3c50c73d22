package postgresengine

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

const (
	logMsgSchemaEnsured = "schema ensured"
	logAttrTable        = "table"
	logActionSchema     = "schema"
)

// EnsureSchema creates the documents table and its indexes when they do not exist yet.
//
// Every row holds the collection coordinates, the primary key and the storage-form JSONB body.
// A GIN index on the body serves containment filters and alias lookups.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(r.tableName) {
		if err := r.exec(ctx, stmt, logActionSchema, docstore.ErrEnsureSchemaFailed); err != nil {
			if errors.Is(err, docstore.ErrEnsureSchemaFailed) {
				return err
			}

			return errors.Join(docstore.ErrEnsureSchemaFailed, err)
		}
	}

	r.logOperation(ctx, logMsgSchemaEnsured, logAttrTable, r.tableName)

	return nil
}

func schemaStatements(tableName string) []string {
	table := pgx.Identifier{tableName}.Sanitize()
	uniqueIndex := pgx.Identifier{tableName + "_document_key_idx"}.Sanitize()
	bodyIndex := pgx.Identifier{tableName + "_document_body_idx"}.Sanitize()

	return []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
	sequence_number BIGSERIAL PRIMARY KEY,
	database_name   TEXT NOT NULL,
	entity_name     TEXT NOT NULL,
	document_id     TEXT NOT NULL,
	document        JSONB NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + uniqueIndex + ` ON ` + table + ` (database_name, entity_name, document_id)`,
		`CREATE INDEX IF NOT EXISTS ` + bodyIndex + ` ON ` + table + ` USING GIN (document jsonb_path_ops)`,
	}
}
