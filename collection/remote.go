package collection

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

const (
	apiPrefix       = "/api/v1"
	filterSegment   = "filter"
	contentTypeJSON = "application/json"
	maxErrorBody    = 64 << 10
)

const (
	logMsgRequest      = "remote collection request"
	logAttrMethod      = "method"
	logAttrPath        = "path"
	logAttrStatus      = "status"
	logAttrDurationMS  = "duration_ms"
	logAttrDatabase    = "database_name"
	logAttrEntity      = "entity_name"
	logAttrError       = "error"
	logAttrEventName   = "event_name"
	logAttrModelsCount = "models_count"
	microsPerMilli     = 1000
)

// Remote talks to the document store over its HTTP wire API.
type Remote[T docstore.Model] struct {
	settings
	baseURL string
}

// NewRemote creates a remote collection for T below baseURL, e.g. "http://localhost:8080".
func NewRemote[T docstore.Model](baseURL, databaseName string, options ...Option) (*Remote[T], error) {
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}

	s, err := newSettings[T](databaseName, options)
	if err != nil {
		return nil, err
	}

	return &Remote[T]{settings: s, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (c *Remote[T]) DatabaseName() string {
	return c.databaseName
}

func (c *Remote[T]) EntityName() string {
	return c.entityName
}

// GetAll returns every document of the collection in insertion order.
func (c *Remote[T]) GetAll(ctx context.Context, options ...QueryOption) ([]T, error) {
	q := buildQuery(options)
	if !q.withDeleted {
		return c.getByFilter(ctx, q.scope(docstore.Filter{}))
	}

	var docs []docstore.Document
	if _, err := c.do(ctx, http.MethodGet, c.collectionPath(), nil, &docs); err != nil {
		return nil, err
	}

	return fromDocuments[T](docs)
}

func (c *Remote[T]) GetByFilter(ctx context.Context, filter docstore.Filter, options ...QueryOption) ([]T, error) {
	return c.getByFilter(ctx, buildQuery(options).scope(filter))
}

func (c *Remote[T]) getByFilter(ctx context.Context, filter docstore.Filter) ([]T, error) {
	if filter.IsEmpty() {
		return c.GetAll(ctx, WithDeleted())
	}

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(filter)
	if err != nil {
		return nil, errors.Join(ErrEncodingModelFailed, err)
	}

	var docs []docstore.Document
	path := c.collectionPath() + "/" + filterSegment + "/" + url.PathEscape(string(encoded))

	if _, err = c.do(ctx, http.MethodGet, path, nil, &docs); err != nil {
		return nil, err
	}

	return fromDocuments[T](docs)
}

// GetByID resolves id against the primary key and the aliases. Soft-deleted documents count as
// absent unless WithDeleted is passed.
func (c *Remote[T]) GetByID(ctx context.Context, id string, options ...QueryOption) (T, bool, error) {
	var zero T

	var doc docstore.Document
	found, err := c.do(ctx, http.MethodGet, c.documentPath(id), nil, &doc)
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

func (c *Remote[T]) GetByIDs(ctx context.Context, ids []string, options ...QueryOption) ([]T, error) {
	return c.GetByFilter(ctx, idsFilter(ids), options...)
}

// Upsert writes model and returns the stored version. The model id is assigned when empty.
func (c *Remote[T]) Upsert(ctx context.Context, model T) (T, error) {
	var zero T

	doc, err := ToDocument(model)
	if err != nil {
		return zero, errors.Join(ErrEncodingModelFailed, err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return zero, errors.Join(ErrEncodingModelFailed, err)
	}

	var stored docstore.Document
	if _, err = c.do(ctx, http.MethodPost, c.documentPath(doc.ID()), body, &stored); err != nil {
		return zero, err
	}

	model, err = FromDocument[T](stored)
	if err != nil {
		return zero, errors.Join(ErrDecodingModelFailed, err)
	}

	if c.modelUpdated != nil {
		c.modelUpdated(ctx, model)
	}

	return model, nil
}

func (c *Remote[T]) Delete(ctx context.Context, id string) (bool, error) {
	var deleted docstore.Document
	return c.do(ctx, http.MethodDelete, c.documentPath(id), nil, &deleted)
}

// Subscribe returns a handle for change events of this collection. It needs WithEventHub.
func (c *Remote[T]) Subscribe() (*Subscription, error) {
	return c.subscribe()
}

func (c *Remote[T]) collectionPath() string {
	return apiPrefix + "/" + url.PathEscape(c.databaseName) + "/" + url.PathEscape(c.entityName)
}

func (c *Remote[T]) documentPath(id string) string {
	return c.collectionPath() + "/" + url.PathEscape(id)
}

// do sends the request and decodes a 200 body into out. It reports false for 204 No Content.
func (c *Remote[T]) do(ctx context.Context, method, path string, body []byte, out any) (bool, error) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, errors.Join(ErrRequestFailed, err)
	}

	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	if c.tokenProvider != nil {
		token, tokenErr := c.tokenProvider(ctx)
		if tokenErr != nil {
			return false, errors.Join(ErrRequestFailed, tokenErr)
		}

		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Join(ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logDebug(logMsgRequest,
		logAttrMethod, method,
		logAttrPath, path,
		logAttrStatus, resp.StatusCode,
		logAttrDurationMS, float64(time.Since(start).Microseconds())/microsPerMilli,
	)

	switch resp.StatusCode {
	case http.StatusOK:
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, errors.Join(ErrDecodingBodyFailed, err)
		}

		return true, nil

	case http.StatusNoContent:
		return false, nil

	default:
		return false, statusError(resp)
	}
}

// statusError maps the wire error statuses back to the repository's sentinel errors.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode, Message: payload.Error}

	switch resp.StatusCode {
	case http.StatusConflict:
		return errors.Join(docstore.ErrDuplicateKey, statusErr)
	case http.StatusBadRequest:
		return errors.Join(docstore.ErrValidation, statusErr)
	default:
		return statusErr
	}
}

var _ Collection[*docstore.BaseModel] = (*Remote[*docstore.BaseModel])(nil)
