package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/postgresengine/internal/adapters"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub"
)

const (
	defaultTableName           = "documents"
	pgUniqueViolation          = "23505"
	logMsgBuildQueryFailed     = "failed to build query"
	logMsgDBQueryFailed        = "database query execution failed"
	logMsgDBExecFailed         = "database execution failed"
	logMsgCloseRowsFailed      = "failed to close database rows"
	logMsgScanRowFailed        = "failed to scan database row"
	logMsgDecodeDocumentFailed = "failed to decode stored document"
	logMsgDuplicateKey         = "duplicate document key"
	logMsgDocumentsQueried     = "documents queried"
	logMsgDocumentUpserted     = "document upserted"
	logMsgDocumentDeleted      = "document deleted"
	logMsgIdentityMerged       = "identity merged into existing document"
	logMsgSQLExecuted          = "executed sql for: "
	logMsgOperation            = "docstore operation: "
	logAttrError               = "error"
	logAttrQuery               = "query"
	logAttrDatabaseName        = "database_name"
	logAttrEntityName          = "entity_name"
	logAttrDocumentID          = "document_id"
	logAttrMatchedID           = "matched_id"
	logAttrDocumentCount       = "document_count"
	logAttrWritePath           = "write_path"
	logAttrDurationMS          = "duration_ms"
	logActionQuery             = "query"
	logActionUpdate            = "update"
	logActionInsert            = "insert"
	logActionDelete            = "delete"
	colSequenceNumber          = "sequence_number"
	colDatabaseName            = "database_name"
	colEntityName              = "entity_name"
	colDocumentID              = "document_id"
	colDocument                = "document"
	dialectPostgres            = "postgres"
	castJsonb                  = "?::jsonb"
	writePathExact             = "exact"
	writePathAlias             = "alias"
	writePathInsert            = "insert"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// upsertMu serializes upserts of all collections in this process, so that identity resolution,
// write and re-read of one upsert never interleave with another.
var upsertMu sync.Mutex

// Repository is a docstore.Repository on a PostgreSQL JSONB table.
type Repository struct {
	db               adapters.DBAdapter
	tableName        string
	logger           docstore.Logger
	contextualLogger docstore.ContextualLogger
	metricsCollector docstore.MetricsCollector
	tracingCollector docstore.TracingCollector
	eventQueue       EventQueue
}

type storedRow struct {
	sequenceNumber int64
	documentID     string
	document       docstore.StorageDocument
}

// NewRepositoryFromPGXPool creates a Repository using a pgx Pool with optional configuration.
func NewRepositoryFromPGXPool(pool *pgxpool.Pool, options ...Option) (*Repository, error) {
	if pool == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newRepository(adapters.NewPGXAdapter(pool), options)
}

// NewRepositoryFromPGXPoolAndReplica creates a Repository whose eventually consistent reads
// (see docstore.WithEventualConsistency) are served by replica.
func NewRepositoryFromPGXPoolAndReplica(pool *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Repository, error) {
	if pool == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	if replica == nil {
		return newRepository(adapters.NewPGXAdapter(pool), options)
	}

	return newRepository(adapters.NewPGXAdapterWithReplica(pool, replica), options)
}

// NewRepositoryFromSQLDB creates a Repository using a sql.DB with optional configuration.
func NewRepositoryFromSQLDB(db *sql.DB, options ...Option) (*Repository, error) {
	if db == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newRepository(adapters.NewSQLAdapter(db), options)
}

// NewRepositoryFromSQLX creates a Repository using a sqlx.DB with optional configuration.
func NewRepositoryFromSQLX(db *sqlx.DB, options ...Option) (*Repository, error) {
	if db == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newRepository(adapters.NewSQLXAdapter(db), options)
}

func newRepository(db adapters.DBAdapter, options []Option) (*Repository, error) {
	r := &Repository{
		db:        db,
		tableName: defaultTableName,
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// TableName returns the documents table.
func (r *Repository) TableName() string {
	return r.tableName
}

// GetAll returns every document of the collection in insertion order.
func (r *Repository) GetAll(ctx context.Context, databaseName, entityName string) ([]docstore.Document, error) {
	observer, ctx := r.observe(ctx, spanNameQuery, metricQueryDuration, operationGetAll, databaseName, entityName, "")

	docs, err := r.queryDocuments(ctx, databaseName, entityName, goqu.L("TRUE"))
	if err != nil {
		observer.failure(classify(err))
		return nil, err
	}

	observer.success(len(docs), nil)
	r.logOperation(ctx, logMsgDocumentsQueried,
		logAttrDatabaseName, databaseName, logAttrEntityName, entityName, logAttrDocumentCount, len(docs))

	return docs, nil
}

// GetByFilter returns the documents matching filter in insertion order.
func (r *Repository) GetByFilter(ctx context.Context, databaseName, entityName string, filter docstore.Filter) ([]docstore.Document, error) {
	observer, ctx := r.observe(ctx, spanNameQuery, metricQueryDuration, operationGetByFilter, databaseName, entityName, "")

	if err := filter.Validate(); err != nil {
		observer.failure(errorTypeValidation)
		return nil, err
	}

	where, err := translateFilter(filter)
	if err != nil {
		observer.failure(classify(err))
		return nil, err
	}

	docs, err := r.queryDocuments(ctx, databaseName, entityName, where)
	if err != nil {
		observer.failure(classify(err))
		return nil, err
	}

	observer.success(len(docs), nil)
	r.logOperation(ctx, logMsgDocumentsQueried,
		logAttrDatabaseName, databaseName, logAttrEntityName, entityName, logAttrDocumentCount, len(docs))

	return docs, nil
}

// GetByID returns the document whose primary key or alias list matches id.
func (r *Repository) GetByID(ctx context.Context, databaseName, entityName, id string) (docstore.Document, bool, error) {
	observer, ctx := r.observe(ctx, spanNameQuery, metricQueryDuration, operationGetByID, databaseName, entityName, id)

	row, found, err := r.findOne(ctx, databaseName, entityName, identityExpression(id))
	if err != nil {
		observer.failure(classify(err))
		return nil, false, err
	}

	if !found {
		observer.success(0, nil)
		return nil, false, nil
	}

	doc, err := r.toTransfer(ctx, row)
	if err != nil {
		observer.failure(errorTypeDecode)
		return nil, false, err
	}

	observer.success(1, nil)

	return doc, true, nil
}

// Upsert writes doc under id and returns the stored document.
//
// The target is resolved in order: a document whose primary key is id, then the oldest document
// whose primary key or alias list matches id or any alias of doc, else a new document is inserted.
// Updates merge the top-level fields of doc into the stored document. When an alias match lands on
// a document with another primary key, id is added to its alias list so both keys resolve to it.
func (r *Repository) Upsert(
	ctx context.Context,
	databaseName, entityName, id string,
	doc docstore.Document,
	options docstore.UpsertOptions,
) (docstore.Document, error) {

	observer, ctx := r.observe(ctx, spanNameUpsert, metricUpsertDuration, operationUpsert, databaseName, entityName, id)

	input := doc.Clone()
	if disable, ok := input[docstore.FieldDisableEvents].(bool); ok {
		options.DisableEvents = options.DisableEvents || disable
	}
	delete(input, docstore.FieldDisableEvents)
	input[docstore.FieldID] = id

	storage, err := input.ToStorage()
	if err != nil {
		observer.failure(errorTypeValidation)
		return nil, err
	}

	upsertMu.Lock()
	defer upsertMu.Unlock()

	ctx = docstore.WithStrongConsistency(ctx)
	writePath, err := r.write(ctx, databaseName, entityName, id, storage)
	if err != nil {
		observer.failure(classify(err))
		return nil, err
	}

	identities := append([]string{id}, storage.IDs()...)
	row, found, err := r.findOne(ctx, databaseName, entityName, identityExpression(identities...))
	if err != nil {
		observer.failure(classify(err))
		return nil, errors.Join(docstore.ErrUpsertFailed, err)
	}

	if !found {
		observer.failure(errorTypeUnknown)
		return nil, errors.Join(docstore.ErrUpsertFailed, errors.New("document vanished after write"))
	}

	result, err := r.toTransfer(ctx, row)
	if err != nil {
		observer.failure(errorTypeDecode)
		return nil, err
	}

	if !options.DisableEvents {
		if writePath == writePathInsert {
			r.queueChangeEvents(docstore.KindModelsInserted, docstore.KindModelInserted, databaseName, entityName, id)
		} else {
			r.queueChangeEvents(docstore.KindModelsUpdated, docstore.KindModelUpdated, databaseName, entityName, id)
		}
	}

	observer.success(1, map[string]string{spanAttrWritePath: writePath})
	r.logOperation(ctx, logMsgDocumentUpserted,
		logAttrDatabaseName, databaseName, logAttrEntityName, entityName, logAttrDocumentID, id, logAttrWritePath, writePath)

	return result, nil
}

// write resolves the target of an upsert and performs the update or insert. The caller holds upsertMu.
func (r *Repository) write(ctx context.Context, databaseName, entityName, id string, storage docstore.StorageDocument) (string, error) {
	exact, found, err := r.findOne(ctx, databaseName, entityName, goqu.C(colDocumentID).Eq(id))
	if err != nil {
		return "", errors.Join(docstore.ErrUpsertFailed, err)
	}

	if found {
		return writePathExact, r.update(ctx, exact.sequenceNumber, mergePatch(storage, nil))
	}

	identities := append([]string{id}, storage.IDs()...)
	matched, found, err := r.findOne(ctx, databaseName, entityName, identityExpression(identities...))
	if err != nil {
		return "", errors.Join(docstore.ErrUpsertFailed, err)
	}

	if found {
		r.incrementCounter(ctx, metricIdentityMerges, map[string]string{spanAttrOperation: operationUpsert})
		r.logOperation(ctx, logMsgIdentityMerged, logAttrDocumentID, id, logAttrMatchedID, matched.documentID)

		return writePathAlias, r.update(ctx, matched.sequenceNumber, mergePatch(storage, &matched))
	}

	return writePathInsert, r.insert(ctx, databaseName, entityName, id, storage)
}

// mergePatch is the stored form without its primary key. When mergeInto is given, the alias list
// becomes the union of the stored aliases of mergeInto, the incoming aliases and the incoming primary key.
func mergePatch(storage docstore.StorageDocument, mergeInto *storedRow) map[string]any {
	patch := make(map[string]any, len(storage))
	for k, v := range storage {
		if k != docstore.StorageFieldID {
			patch[k] = v
		}
	}

	if mergeInto == nil {
		return patch
	}

	seen := make(map[string]bool)
	aliases := make([]any, 0)

	for _, list := range [][]string{mergeInto.document.IDs(), storage.IDs(), {storage.ID()}} {
		for _, alias := range list {
			if alias == "" || alias == mergeInto.documentID || seen[alias] {
				continue
			}

			seen[alias] = true
			aliases = append(aliases, alias)
		}
	}

	patch[docstore.StorageFieldIDs] = aliases

	return patch
}

func (r *Repository) update(ctx context.Context, sequenceNumber int64, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return errors.Join(docstore.ErrEncodingDocumentFailed, err)
	}

	stmt := goqu.Dialect(dialectPostgres).
		Update(r.tableName).
		Set(goqu.Record{colDocument: goqu.L("? || "+castJsonb, goqu.I(colDocument), string(raw))}).
		Where(goqu.C(colSequenceNumber).Eq(sequenceNumber))

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return r.exec(ctx, sqlQuery, logActionUpdate, docstore.ErrUpsertFailed)
}

func (r *Repository) insert(ctx context.Context, databaseName, entityName, id string, storage docstore.StorageDocument) error {
	raw, err := json.Marshal(storage)
	if err != nil {
		return errors.Join(docstore.ErrEncodingDocumentFailed, err)
	}

	stmt := goqu.Dialect(dialectPostgres).
		Insert(r.tableName).
		Rows(goqu.Record{
			colDatabaseName: databaseName,
			colEntityName:   entityName,
			colDocumentID:   id,
			colDocument:     goqu.L(castJsonb, string(raw)),
		})

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return r.exec(ctx, sqlQuery, logActionInsert, docstore.ErrUpsertFailed)
}

// Delete removes the document whose primary key or alias list matches id and returns it.
// An absent document is not an error.
func (r *Repository) Delete(ctx context.Context, databaseName, entityName, id string) (docstore.Document, bool, error) {
	observer, ctx := r.observe(ctx, spanNameDelete, metricDeleteDuration, operationDelete, databaseName, entityName, id)
	ctx = docstore.WithStrongConsistency(ctx)

	row, found, err := r.findOne(ctx, databaseName, entityName, identityExpression(id))
	if err != nil {
		observer.failure(classify(err))
		return nil, false, errors.Join(docstore.ErrDeleteFailed, err)
	}

	if !found {
		observer.success(0, nil)
		return nil, false, nil
	}

	stmt := goqu.Dialect(dialectPostgres).
		Delete(r.tableName).
		Where(goqu.C(colSequenceNumber).Eq(row.sequenceNumber))

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		observer.failure(errorTypeBuildQuery)
		return nil, false, errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	if err := r.exec(ctx, sqlQuery, logActionDelete, docstore.ErrDeleteFailed); err != nil {
		observer.failure(classify(err))
		return nil, false, err
	}

	r.queueChangeEvents(docstore.KindModelsDeleted, docstore.KindModelDeleted, databaseName, entityName, id)

	deleted, err := r.toTransfer(ctx, row)
	if err != nil {
		observer.failure(errorTypeDecode)
		return nil, false, err
	}

	observer.success(1, nil)
	r.logOperation(ctx, logMsgDocumentDeleted,
		logAttrDatabaseName, databaseName, logAttrEntityName, entityName, logAttrDocumentID, id)

	return deleted, true, nil
}

// identityExpression matches documents whose primary key or alias list contains any of ids.
func identityExpression(ids ...string) exp.Expression {
	expressions := make([]exp.Expression, 0, 2*len(ids))

	for _, id := range ids {
		aliasContainment, _ := json.Marshal(map[string]any{docstore.StorageFieldIDs: []string{id}})

		expressions = append(expressions,
			goqu.C(colDocumentID).Eq(id),
			goqu.L("? @> "+castJsonb, goqu.I(colDocument), string(aliasContainment)),
		)
	}

	return goqu.Or(expressions...)
}

func (r *Repository) buildSelectQuery(databaseName, entityName string, where exp.Expression, limit uint) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(r.tableName).
		Select(colSequenceNumber, colDocumentID, colDocument).
		Where(
			goqu.C(colDatabaseName).Eq(databaseName),
			goqu.C(colEntityName).Eq(entityName),
			where,
		).
		Order(goqu.I(colSequenceNumber).Asc())

	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (r *Repository) queryDocuments(ctx context.Context, databaseName, entityName string, where exp.Expression) ([]docstore.Document, error) {
	rows, err := r.queryRows(ctx, databaseName, entityName, where, 0)
	if err != nil {
		return nil, err
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := r.toTransfer(ctx, row)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (r *Repository) findOne(ctx context.Context, databaseName, entityName string, where exp.Expression) (storedRow, bool, error) {
	rows, err := r.queryRows(ctx, databaseName, entityName, where, 1)
	if err != nil || len(rows) == 0 {
		return storedRow{}, false, err
	}

	return rows[0], true, nil
}

func (r *Repository) queryRows(ctx context.Context, databaseName, entityName string, where exp.Expression, limit uint) ([]storedRow, error) {
	sqlQuery, err := r.buildSelectQuery(databaseName, entityName, where, limit)
	if err != nil {
		r.logError(ctx, logMsgBuildQueryFailed, err)
		return nil, err
	}

	start := time.Now()
	rows, queryErr := r.db.Query(ctx, sqlQuery)
	r.logQueryWithDuration(ctx, sqlQuery, logActionQuery, time.Since(start))

	if queryErr != nil {
		r.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(docstore.ErrQueryingDocumentsFailed, queryErr)
	}
	defer r.closeRows(ctx, rows)

	result := make([]storedRow, 0)

	for rows.Next() {
		var row storedRow
		var raw []byte

		if scanErr := rows.Scan(&row.sequenceNumber, &row.documentID, &raw); scanErr != nil {
			r.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(docstore.ErrScanningDBRowFailed, scanErr)
		}

		if decodeErr := json.Unmarshal(raw, &row.document); decodeErr != nil {
			r.logError(ctx, logMsgDecodeDocumentFailed, decodeErr, logAttrDocumentID, row.documentID)
			return nil, errors.Join(docstore.ErrDecodingDocumentFailed, decodeErr)
		}

		result = append(result, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		r.logError(ctx, logMsgDBQueryFailed, rowsErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(docstore.ErrQueryingDocumentsFailed, rowsErr)
	}

	return result, nil
}

// exec runs a write statement. Unique violations become docstore.ErrDuplicateKey, other failures are joined with failure.
func (r *Repository) exec(ctx context.Context, sqlQuery string, action string, failure error) error {
	start := time.Now()
	_, execErr := r.db.Exec(ctx, sqlQuery)
	r.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr == nil {
		return nil
	}

	if isUniqueViolation(execErr) {
		r.logWarn(ctx, logMsgDuplicateKey, execErr, logAttrQuery, sqlQuery)
		return errors.Join(docstore.ErrDuplicateKey, execErr)
	}

	r.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)

	return errors.Join(failure, execErr)
}

func (r *Repository) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		r.logWarn(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

func (r *Repository) toTransfer(ctx context.Context, row storedRow) (docstore.Document, error) {
	doc, err := row.document.ToTransfer()
	if err != nil {
		r.logError(ctx, logMsgDecodeDocumentFailed, err, logAttrDocumentID, row.documentID)
		return nil, errors.Join(docstore.ErrDecodingDocumentFailed, err)
	}

	return doc, nil
}

func (r *Repository) queueChangeEvents(plural, singular docstore.ChangeEventKind, databaseName, entityName, id string) {
	if r.eventQueue == nil {
		return
	}

	events := docstore.NewChangeEvents(plural, singular, databaseName, entityName, id)
	values := make([]messagehub.Event, 0, len(events))
	for _, event := range events {
		values = append(values, event)
	}

	r.eventQueue.QueueEvent(messagehub.Envelope{Values: values})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}

	return false
}

func classify(err error) string {
	switch {
	case errors.Is(err, docstore.ErrValidation):
		return errorTypeValidation
	case errors.Is(err, docstore.ErrDuplicateKey):
		return errorTypeDuplicateKey
	case errors.Is(err, docstore.ErrBuildingQueryFailed):
		return errorTypeBuildQuery
	case errors.Is(err, docstore.ErrScanningDBRowFailed):
		return errorTypeRowScan
	case errors.Is(err, docstore.ErrDecodingDocumentFailed), errors.Is(err, docstore.ErrEncodingDocumentFailed):
		return errorTypeDecode
	case errors.Is(err, docstore.ErrQueryingDocumentsFailed):
		return errorTypeDatabaseQuery
	case errors.Is(err, docstore.ErrUpsertFailed), errors.Is(err, docstore.ErrDeleteFailed):
		return errorTypeDatabaseExec
	default:
		return errorTypeUnknown
	}
}

var _ docstore.Repository = (*Repository)(nil)

