package docstore

import "context"

// UpsertOptions tune a single upsert.
type UpsertOptions struct {
	// DisableEvents suppresses the change events of this write.
	DisableEvents bool
}

// Repository stores transfer-form documents per (database, entity) collection.
// GetByID and Delete resolve id against the primary key and the alias list.
type Repository interface {
	GetAll(ctx context.Context, databaseName, entityName string) ([]Document, error)
	GetByFilter(ctx context.Context, databaseName, entityName string, filter Filter) ([]Document, error)
	GetByID(ctx context.Context, databaseName, entityName, id string) (doc Document, found bool, err error)
	Upsert(ctx context.Context, databaseName, entityName, id string, doc Document, options UpsertOptions) (Document, error)
	Delete(ctx context.Context, databaseName, entityName, id string) (deleted Document, found bool, err error)
}
