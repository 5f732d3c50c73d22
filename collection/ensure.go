package collection

import (
	"context"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

const (
	logMsgEnsurePlanned = "ensuring static models exist"
	logMsgEnsureAdd     = "ensure models exist: adding model"
	logMsgEnsureUpdate  = "ensure models exist: updating model"
	logMsgEnsureRemove  = "ensure models exist: removing model"
	logAttrUniqueKeys   = "unique_keys"
	logAttrToAdd        = "to_add"
	logAttrToUpdate     = "to_update"
	logAttrToRemove     = "to_remove"
	logAttrHardDelete   = "hard_delete"
)

// EnsureOptions tune EnsureModelsExist. The zero value replaces matched models with the input and
// soft-deletes stored models that are missing from the input.
type EnsureOptions[T docstore.UniqueModel] struct {
	// Previous is the stored state to diff against. When nil, all documents including soft-deleted
	// ones are read from the collection.
	Previous []T

	// HardDelete deletes stored models missing from the input instead of soft-deleting them.
	HardDelete bool

	// Update merges input into the stored model, which is then written instead of the input.
	Update func(stored, input T)

	// ShouldUpdate decides whether a matched model is written at all. Nil writes every match.
	ShouldUpdate func(stored, input T) bool

	// SoftDelete prepares a stored model for its soft-delete write, replacing the default of
	// setting is_deleted.
	SoftDelete func(stored T)

	// ShouldSoftDelete decides whether SoftDelete applies to a stored model. Nil applies it to all.
	ShouldSoftDelete func(stored T) bool

	Logger docstore.Logger
}

// EnsureResult counts the writes EnsureModelsExist made.
type EnsureResult struct {
	Added   int
	Updated int
	Removed int
}

type updatePair[T docstore.UniqueModel] struct {
	stored T
	input  T
}

// EnsureModelsExist makes the collection contain exactly the input models, matched by unique key:
// missing models are inserted, matched ones updated, and live stored models without a match removed.
func EnsureModelsExist[T docstore.UniqueModel](
	ctx context.Context,
	coll Collection[T],
	input []T,
	options EnsureOptions[T],
) (EnsureResult, error) {
	var result EnsureResult

	previous := options.Previous
	if previous == nil {
		all, err := coll.GetAll(ctx, WithDeleted())
		if err != nil {
			return result, err
		}

		previous = all
	}

	inputByKey, inputKeys := indexByUniqueKey(input)
	previousByKey, previousKeys := indexByUniqueKey(previous)

	var toAdd []T
	var toUpdate []updatePair[T]
	var toRemove []T

	// A model with several unique keys is planned once.
	planned := make(map[*docstore.BaseModel]bool)

	for _, key := range inputKeys {
		model := inputByKey[key]
		if model.Base().IsDeleted || planned[model.Base()] {
			continue
		}

		planned[model.Base()] = true

		if stored, found := previousByKey[key]; found {
			planned[stored.Base()] = true
			toUpdate = append(toUpdate, updatePair[T]{stored: stored, input: model})
		} else {
			toAdd = append(toAdd, model)
		}
	}

	for _, key := range previousKeys {
		stored := previousByKey[key]
		if stored.Base().IsDeleted || planned[stored.Base()] {
			continue
		}

		if _, found := inputByKey[key]; !found {
			planned[stored.Base()] = true
			toRemove = append(toRemove, stored)
		}
	}

	logInfo(options.Logger, logMsgEnsurePlanned,
		logAttrDatabase, coll.DatabaseName(),
		logAttrEntity, coll.EntityName(),
		logAttrModelsCount, len(input),
		logAttrToAdd, len(toAdd),
		logAttrToUpdate, len(toUpdate),
		logAttrToRemove, len(toRemove),
	)

	for _, model := range toAdd {
		model.Base().IsDeleted = false
		logInfo(options.Logger, logMsgEnsureAdd, logAttrUniqueKeys, model.UniqueKeys())

		if _, err := coll.Upsert(ctx, model); err != nil {
			return result, err
		}

		result.Added++
	}

	for _, pair := range toUpdate {
		if options.ShouldUpdate != nil && !options.ShouldUpdate(pair.stored, pair.input) {
			continue
		}

		write := pair.input
		if options.Update != nil {
			pair.stored.Base().IsDeleted = false
			options.Update(pair.stored, pair.input)
			write = pair.stored
		} else {
			write.Base().ID = pair.stored.Base().ID
		}

		write.Base().IsDeleted = false
		logInfo(options.Logger, logMsgEnsureUpdate, logAttrUniqueKeys, pair.input.UniqueKeys())

		if _, err := coll.Upsert(ctx, write); err != nil {
			return result, err
		}

		result.Updated++
	}

	for _, stored := range toRemove {
		removed, err := ensureRemoved(ctx, coll, stored, options)
		if err != nil {
			return result, err
		}

		if removed {
			result.Removed++
		}
	}

	return result, nil
}

func ensureRemoved[T docstore.UniqueModel](ctx context.Context, coll Collection[T], stored T, options EnsureOptions[T]) (bool, error) {
	logInfo(options.Logger, logMsgEnsureRemove, logAttrUniqueKeys, stored.UniqueKeys(), logAttrHardDelete, options.HardDelete)

	switch {
	case options.SoftDelete != nil:
		if options.ShouldSoftDelete != nil && !options.ShouldSoftDelete(stored) {
			return false, nil
		}

		options.SoftDelete(stored)

		_, err := coll.Upsert(ctx, stored)

		return err == nil, err

	case options.HardDelete:
		_, err := coll.Delete(ctx, stored.Base().ID)
		return err == nil, err

	default:
		stored.Base().IsDeleted = true

		_, err := coll.Upsert(ctx, stored)

		return err == nil, err
	}
}

// indexByUniqueKey maps every unique key to its model. Later models win on key collisions.
// The returned key list keeps first-seen order.
func indexByUniqueKey[T docstore.UniqueModel](models []T) (map[string]T, []string) {
	byKey := make(map[string]T, len(models))
	keys := make([]string, 0, len(models))

	for _, model := range models {
		for _, key := range model.UniqueKeys() {
			if key == "" {
				continue
			}

			if _, seen := byKey[key]; !seen {
				keys = append(keys, key)
			}

			byKey[key] = model
		}
	}

	return byKey, keys
}

func logInfo(logger docstore.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}
