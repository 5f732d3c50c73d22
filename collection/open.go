package collection

import (
	"github.com/AntonStoeckl/realtime-docsync-go/cache"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// Backend names where Open finds the documents. BaseURL selects the HTTP wire API, Repository an
// in-process store. Cache is only used for cached collections and needs Repository as its source.
type Backend struct {
	BaseURL    string
	Repository docstore.Repository
	Cache      *cache.Service
}

// Open returns the collection of T in databaseName on backend.
//
// With cached set and a cache service present it returns a Cached collection. Otherwise it returns
// a Remote collection when BaseURL is set and a Direct one when it is not.
func Open[T docstore.Model](backend Backend, databaseName string, cached bool, options ...Option) (Collection[T], error) {
	switch {
	case cached && backend.Cache != nil:
		return asCollection[T](NewCached[T](backend.Cache, backend.Repository, databaseName, options...))
	case backend.BaseURL != "":
		return asCollection[T](NewRemote[T](backend.BaseURL, databaseName, options...))
	default:
		return asCollection[T](NewDirect[T](backend.Repository, databaseName, options...))
	}
}

// asCollection keeps a failed constructor from leaking a typed nil into the interface.
func asCollection[T docstore.Model, C Collection[T]](coll C, err error) (Collection[T], error) {
	if err != nil {
		return nil, err
	}

	return coll, nil
}
