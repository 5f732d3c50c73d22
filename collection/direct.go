package collection

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// Direct runs against an in-process Repository, e.g. inside the server binary or in tests.
type Direct[T docstore.Model] struct {
	settings
	repository docstore.Repository
}

// NewDirect creates a collection for T on top of repository.
func NewDirect[T docstore.Model](repository docstore.Repository, databaseName string, options ...Option) (*Direct[T], error) {
	if repository == nil {
		return nil, ErrNilRepository
	}

	s, err := newSettings[T](databaseName, options)
	if err != nil {
		return nil, err
	}

	return &Direct[T]{settings: s, repository: repository}, nil
}

func (c *Direct[T]) DatabaseName() string {
	return c.databaseName
}

func (c *Direct[T]) EntityName() string {
	return c.entityName
}

func (c *Direct[T]) GetAll(ctx context.Context, options ...QueryOption) ([]T, error) {
	q := buildQuery(options)
	if !q.withDeleted {
		return c.GetByFilter(ctx, docstore.Filter{})
	}

	docs, err := c.repository.GetAll(ctx, c.databaseName, c.entityName)
	if err != nil {
		return nil, err
	}

	return fromDocuments[T](docs)
}

func (c *Direct[T]) GetByFilter(ctx context.Context, filter docstore.Filter, options ...QueryOption) ([]T, error) {
	scoped := buildQuery(options).scope(filter)
	if scoped.IsEmpty() {
		return c.GetAll(ctx, WithDeleted())
	}

	docs, err := c.repository.GetByFilter(ctx, c.databaseName, c.entityName, scoped)
	if err != nil {
		return nil, err
	}

	return fromDocuments[T](docs)
}

func (c *Direct[T]) GetByID(ctx context.Context, id string, options ...QueryOption) (T, bool, error) {
	var zero T

	doc, found, err := c.repository.GetByID(ctx, c.databaseName, c.entityName, id)
	if err != nil || !found {
		return zero, false, err
	}

	if doc.IsDeleted() && !buildQuery(options).withDeleted {
		return zero, false, nil
	}

	model, err := FromDocument[T](doc)
	if err != nil {
		return zero, false, errors.Join(ErrDecodingModelFailed, err)
	}

	return model, true, nil
}

func (c *Direct[T]) GetByIDs(ctx context.Context, ids []string, options ...QueryOption) ([]T, error) {
	return c.GetByFilter(ctx, idsFilter(ids), options...)
}

func (c *Direct[T]) Upsert(ctx context.Context, model T) (T, error) {
	var zero T

	doc, err := ToDocument(model)
	if err != nil {
		return zero, errors.Join(ErrEncodingModelFailed, err)
	}

	stored, err := c.repository.Upsert(ctx, c.databaseName, c.entityName, doc.ID(), doc, docstore.UpsertOptions{})
	if err != nil {
		return zero, err
	}

	return FromDocument[T](stored)
}

func (c *Direct[T]) Delete(ctx context.Context, id string) (bool, error) {
	_, found, err := c.repository.Delete(ctx, c.databaseName, c.entityName, id)
	return found, err
}

func (c *Direct[T]) Subscribe() (*Subscription, error) {
	return c.subscribe()
}

var _ Collection[*docstore.BaseModel] = (*Direct[*docstore.BaseModel])(nil)
