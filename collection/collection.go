package collection

import (
	"context"
	"reflect"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const modelTypeSuffix = "Model"

// Collection is the typed client view of one (database, entity) collection.
//
// Reads hide soft-deleted documents unless WithDeleted is passed.
type Collection[T docstore.Model] interface {
	DatabaseName() string
	EntityName() string
	GetAll(ctx context.Context, options ...QueryOption) ([]T, error)
	GetByFilter(ctx context.Context, filter docstore.Filter, options ...QueryOption) ([]T, error)
	GetByID(ctx context.Context, id string, options ...QueryOption) (model T, found bool, err error)
	GetByIDs(ctx context.Context, ids []string, options ...QueryOption) ([]T, error)
	Upsert(ctx context.Context, model T) (T, error)
	Delete(ctx context.Context, id string) (found bool, err error)
	Subscribe() (*Subscription, error)
}

// QueryOption tunes a single read.
type QueryOption func(*query)

type query struct {
	withDeleted bool
}

// WithDeleted makes a read include soft-deleted documents.
func WithDeleted() QueryOption {
	return func(q *query) {
		q.withDeleted = true
	}
}

func buildQuery(options []QueryOption) query {
	var q query
	for _, option := range options {
		option(&q)
	}

	return q
}

// liveOnly is ANDed into reads that hide soft-deleted documents. BOOL false also matches an absent flag.
func liveOnly() docstore.Filter {
	return docstore.EqualsBool(docstore.FieldIsDeleted, false)
}

func (q query) scope(filter docstore.Filter) docstore.Filter {
	if q.withDeleted {
		return filter
	}

	if filter.IsEmpty() {
		return liveOnly()
	}

	return docstore.And(filter, liveOnly())
}

func idsFilter(ids []string) docstore.Filter {
	return docstore.Or(docstore.In(docstore.FieldID, ids...), docstore.In(docstore.FieldIDs, ids...))
}

// NewID returns a fresh random document id.
func NewID() string {
	return uuid.NewString()
}

// EntityNameOf derives the entity name from the model type: the type name without a trailing "Model".
func EntityNameOf[T docstore.Model]() string {
	return strings.TrimSuffix(modelTypeName[T](), modelTypeSuffix)
}

func modelTypeName[T docstore.Model]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.Name()
}

// ToDocument encodes model into transfer form. Models with unique keys get their "UNIQUE:" aliases
// refreshed first, and a model without id gets a fresh one.
func ToDocument[T docstore.Model](model T) (docstore.Document, error) {
	base := model.Base()
	if base.ID == "" {
		base.ID = NewID()
	}

	if unique, ok := any(model).(docstore.UniqueModel); ok {
		docstore.TagUniqueKeys(unique)
	}

	raw, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}

	var doc docstore.Document
	if err = json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// FromDocument decodes a transfer-form document into a new model.
func FromDocument[T docstore.Model](doc docstore.Document) (T, error) {
	var model T

	raw, err := json.Marshal(doc)
	if err != nil {
		return model, err
	}

	if err = json.Unmarshal(raw, &model); err != nil {
		return model, err
	}

	return model, nil
}

func fromDocuments[T docstore.Model](docs []docstore.Document) ([]T, error) {
	models := make([]T, 0, len(docs))

	for _, doc := range docs {
		model, err := FromDocument[T](doc)
		if err != nil {
			return nil, err
		}

		models = append(models, model)
	}

	return models, nil
}
