package collection

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/realtime-docsync-go/cache"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// Cached serves reads from a cache.Service replica and hands writes to it. Writes become visible
// immediately and reach the store on the next push of the cache worker.
type Cached[T docstore.Model] struct {
	settings
	service *cache.Service
}

// NewCached registers T with service, backed by repository, and returns the collection.
func NewCached[T docstore.Model](
	service *cache.Service,
	repository docstore.Repository,
	databaseName string,
	options ...Option,
) (*Cached[T], error) {
	if service == nil {
		return nil, ErrNilCacheService
	}

	if repository == nil {
		return nil, ErrNilRepository
	}

	s, err := newSettings[T](databaseName, options)
	if err != nil {
		return nil, err
	}

	source := cache.Source{Repository: repository, DatabaseName: s.databaseName, EntityName: s.entityName}
	if err = service.Register(s.typeName, source); err != nil {
		return nil, err
	}

	return &Cached[T]{settings: s, service: service}, nil
}

func (c *Cached[T]) DatabaseName() string {
	return c.databaseName
}

func (c *Cached[T]) EntityName() string {
	return c.entityName
}

// TypeName is the key T is registered under in the cache service.
func (c *Cached[T]) TypeName() string {
	return c.typeName
}

func (c *Cached[T]) GetAll(ctx context.Context, options ...QueryOption) ([]T, error) {
	return c.GetByFilter(ctx, docstore.Filter{}, options...)
}

// GetByFilter evaluates filter against the cached documents with the same semantics the store uses.
func (c *Cached[T]) GetByFilter(_ context.Context, filter docstore.Filter, options ...QueryOption) ([]T, error) {
	scoped := buildQuery(options).scope(filter)
	if err := scoped.Validate(); err != nil {
		return nil, err
	}

	var evalErr error
	docs, err := c.service.Find(c.typeName, func(doc docstore.Document) bool {
		matched, err := scoped.Evaluate(docstore.DocumentLookup(doc))
		if err != nil {
			evalErr = err
			return false
		}

		return matched
	})
	if err != nil {
		return nil, err
	}

	if evalErr != nil {
		return nil, evalErr
	}

	return fromDocuments[T](docs)
}

func (c *Cached[T]) GetByID(_ context.Context, id string, options ...QueryOption) (T, bool, error) {
	var zero T

	doc, found, err := c.service.Get(c.typeName, id)
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

func (c *Cached[T]) GetByIDs(ctx context.Context, ids []string, options ...QueryOption) ([]T, error) {
	return c.GetByFilter(ctx, idsFilter(ids), options...)
}

// Upsert stores model in the cache and schedules a push. The returned model is the cached copy.
func (c *Cached[T]) Upsert(_ context.Context, model T) (T, error) {
	var zero T

	doc, err := ToDocument(model)
	if err != nil {
		return zero, errors.Join(ErrEncodingModelFailed, err)
	}

	if err = c.service.Upsert(c.typeName, doc); err != nil {
		return zero, err
	}

	return FromDocument[T](doc)
}

func (c *Cached[T]) Delete(_ context.Context, id string) (bool, error) {
	return c.service.Delete(c.typeName, id)
}

func (c *Cached[T]) Subscribe() (*Subscription, error) {
	return c.subscribe()
}

var _ Collection[*docstore.BaseModel] = (*Cached[*docstore.BaseModel])(nil)
