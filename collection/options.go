package collection

import (
	"context"
	"net/http"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub"
)

// TokenProvider returns the bearer token sent with every remote request. An empty token sends none.
type TokenProvider func(ctx context.Context) (string, error)

// ModelUpdatedFunc is told about every model a remote Upsert has stored.
type ModelUpdatedFunc func(ctx context.Context, model docstore.Model)

// Option configures any of the collection backends.
type Option func(*settings) error

type settings struct {
	databaseName  string
	entityName    string
	logger        docstore.Logger
	hub           *messagehub.Hub
	httpClient    *http.Client
	tokenProvider TokenProvider
	modelUpdated  ModelUpdatedFunc
	typeName      string
}

func newSettings[T docstore.Model](databaseName string, options []Option) (settings, error) {
	if databaseName == "" {
		return settings{}, ErrEmptyDatabaseName
	}

	s := settings{
		databaseName: databaseName,
		entityName:   EntityNameOf[T](),
		httpClient:   http.DefaultClient,
		typeName:     modelTypeName[T](),
	}

	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	if s.entityName == "" {
		return settings{}, ErrEmptyEntityName
	}

	return s, nil
}

// WithEntityName overrides the entity name derived from the model type.
func WithEntityName(entityName string) Option {
	return func(s *settings) error {
		if entityName == "" {
			return ErrEmptyEntityName
		}

		s.entityName = entityName

		return nil
	}
}

// WithLogger sets the logger.
//
// Debug level: every remote request with status and duration
// Warn level: failing subscription handlers.
func WithLogger(logger docstore.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithEventHub enables Subscribe on top of hub.
func WithEventHub(hub *messagehub.Hub) Option {
	return func(s *settings) error {
		s.hub = hub
		return nil
	}
}

// WithHTTPClient replaces http.DefaultClient for remote collections.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) error {
		if client == nil {
			return ErrNilHTTPClient
		}

		s.httpClient = client

		return nil
	}
}

// WithTokenProvider sets the bearer token hook for remote collections.
func WithTokenProvider(provider TokenProvider) Option {
	return func(s *settings) error {
		s.tokenProvider = provider
		return nil
	}
}

// WithModelUpdated registers fn to run after each successful remote Upsert, with the stored model.
func WithModelUpdated(fn ModelUpdatedFunc) Option {
	return func(s *settings) error {
		s.modelUpdated = fn
		return nil
	}
}

func (s settings) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s settings) subscribe() (*Subscription, error) {
	if s.hub == nil {
		return nil, ErrNoEventHub
	}

	return newSubscription(s.hub, s.databaseName, s.entityName, s.logger), nil
}
