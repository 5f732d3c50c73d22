package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RoutePrefix is the versioned prefix of every collection route.
const RoutePrefix = "/api/v1"

const (
	pathDatabase = "database"
	pathEntity   = "entity"
	pathID       = "id"
	pathFilter   = "filter"

	contentTypeJSON = "application/json"
	maxBodyBytes    = 16 << 20
)

const (
	logMsgRequest         = "handled request"
	logMsgRequestFailed   = "request failed"
	logMsgWriteBodyFailed = "writing response body failed"
	logAttrOperation      = "operation"
	logAttrDatabase       = "database_name"
	logAttrEntity         = "entity_name"
	logAttrID             = "id"
	logAttrStatus         = "status"
	logAttrDocumentCount  = "document_count"
	logAttrDurationMS     = "duration_ms"
	logAttrError          = "error"
)

const (
	operationGetAll      = "get_all"
	operationGetByFilter = "get_by_filter"
	operationGetByID     = "get_by_id"
	operationUpsert      = "upsert"
	operationDelete      = "delete"
)

// ErrMalformedBody is returned to clients whose upsert body is not a JSON object.
var ErrMalformedBody = errors.New("request body is not a JSON document")

type errorBody struct {
	Error string `json:"error"`
}

// Handler serves the collection wire API on top of a Repository.
type Handler struct {
	repository docstore.Repository
	logger     docstore.Logger
	mux        *http.ServeMux
}

// NewHandler registers all routes. The repository must not be nil.
func NewHandler(repository docstore.Repository, options ...Option) (*Handler, error) {
	if repository == nil {
		return nil, ErrNilRepository
	}

	h := &Handler{repository: repository, mux: http.NewServeMux()}

	for _, option := range options {
		if err := option(h); err != nil {
			return nil, err
		}
	}

	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET "+RoutePrefix+"/{database}/{entity}", h.getAll)
	h.mux.HandleFunc("GET "+RoutePrefix+"/{database}/{entity}/filter/{filter...}", h.getByFilter)
	h.mux.HandleFunc("GET "+RoutePrefix+"/{database}/{entity}/{id}", h.getByID)
	h.mux.HandleFunc("POST "+RoutePrefix+"/{database}/{entity}/{id}", h.upsert)
	h.mux.HandleFunc("PUT "+RoutePrefix+"/{database}/{entity}/{id}", h.upsert)
	h.mux.HandleFunc("DELETE "+RoutePrefix+"/{database}/{entity}/{id}", h.delete)

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) getAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	databaseName, entityName := r.PathValue(pathDatabase), r.PathValue(pathEntity)

	docs, err := h.repository.GetAll(r.Context(), databaseName, entityName)
	if err != nil {
		h.fail(w, operationGetAll, databaseName, entityName, err)
		return
	}

	h.writeJSON(w, http.StatusOK, docs)
	h.logInfo(logMsgRequest,
		logAttrOperation, operationGetAll,
		logAttrDatabase, databaseName,
		logAttrEntity, entityName,
		logAttrDocumentCount, len(docs),
		logAttrDurationMS, durationMS(start),
	)
}

func (h *Handler) getByFilter(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	databaseName, entityName := r.PathValue(pathDatabase), r.PathValue(pathEntity)

	filter, err := docstore.ParseFilter([]byte(r.PathValue(pathFilter)))
	if err != nil {
		h.fail(w, operationGetByFilter, databaseName, entityName, err)
		return
	}

	docs, err := h.repository.GetByFilter(r.Context(), databaseName, entityName, filter)
	if err != nil {
		h.fail(w, operationGetByFilter, databaseName, entityName, err)
		return
	}

	h.writeJSON(w, http.StatusOK, docs)
	h.logInfo(logMsgRequest,
		logAttrOperation, operationGetByFilter,
		logAttrDatabase, databaseName,
		logAttrEntity, entityName,
		logAttrDocumentCount, len(docs),
		logAttrDurationMS, durationMS(start),
	)
}

func (h *Handler) getByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	databaseName, entityName, id := r.PathValue(pathDatabase), r.PathValue(pathEntity), r.PathValue(pathID)

	doc, found, err := h.repository.GetByID(r.Context(), databaseName, entityName, id)
	if err != nil {
		h.fail(w, operationGetByID, databaseName, entityName, err)
		return
	}

	h.writeDocument(w, doc, found)
	h.logInfo(logMsgRequest,
		logAttrOperation, operationGetByID,
		logAttrDatabase, databaseName,
		logAttrEntity, entityName,
		logAttrID, id,
		logAttrStatus, statusFor(found),
		logAttrDurationMS, durationMS(start),
	)
}

// upsert treats the path id as authoritative and honors a "disable_events" flag in the body.
func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	databaseName, entityName, id := r.PathValue(pathDatabase), r.PathValue(pathEntity), r.PathValue(pathID)

	doc, options, err := decodeUpsertBody(r.Body)
	if err != nil {
		h.fail(w, operationUpsert, databaseName, entityName, err)
		return
	}

	stored, err := h.repository.Upsert(r.Context(), databaseName, entityName, id, doc, options)
	if err != nil {
		h.fail(w, operationUpsert, databaseName, entityName, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stored)
	h.logInfo(logMsgRequest,
		logAttrOperation, operationUpsert,
		logAttrDatabase, databaseName,
		logAttrEntity, entityName,
		logAttrID, id,
		logAttrDurationMS, durationMS(start),
	)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	databaseName, entityName, id := r.PathValue(pathDatabase), r.PathValue(pathEntity), r.PathValue(pathID)

	doc, found, err := h.repository.Delete(r.Context(), databaseName, entityName, id)
	if err != nil {
		h.fail(w, operationDelete, databaseName, entityName, err)
		return
	}

	h.writeDocument(w, doc, found)
	h.logInfo(logMsgRequest,
		logAttrOperation, operationDelete,
		logAttrDatabase, databaseName,
		logAttrEntity, entityName,
		logAttrID, id,
		logAttrStatus, statusFor(found),
		logAttrDurationMS, durationMS(start),
	)
}

func decodeUpsertBody(body io.Reader) (docstore.Document, docstore.UpsertOptions, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, docstore.UpsertOptions{}, errors.Join(docstore.ErrValidation, ErrMalformedBody, err)
	}

	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, docstore.UpsertOptions{}, errors.Join(docstore.ErrValidation, ErrMalformedBody, err)
	}

	var options docstore.UpsertOptions
	if disable, ok := doc[docstore.FieldDisableEvents].(bool); ok {
		options.DisableEvents = disable
	}

	delete(doc, docstore.FieldDisableEvents)

	return doc, options, nil
}

func (h *Handler) writeDocument(w http.ResponseWriter, doc docstore.Document, found bool) {
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if _, err := w.Write(raw); err != nil {
		h.logWarn(logMsgWriteBodyFailed, logAttrError, err.Error())
	}
}

func (h *Handler) fail(w http.ResponseWriter, operation, databaseName, entityName string, err error) {
	status := StatusForError(err)

	if status == http.StatusInternalServerError {
		h.logError(logMsgRequestFailed,
			logAttrOperation, operation,
			logAttrDatabase, databaseName,
			logAttrEntity, entityName,
			logAttrStatus, status,
			logAttrError, err.Error(),
		)
	} else {
		h.logWarn(logMsgRequestFailed,
			logAttrOperation, operation,
			logAttrDatabase, databaseName,
			logAttrEntity, entityName,
			logAttrStatus, status,
			logAttrError, err.Error(),
		)
	}

	h.writeError(w, status, err)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	raw, _ := json.Marshal(errorBody{Error: err.Error()})

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if _, err := w.Write(raw); err != nil {
		h.logWarn(logMsgWriteBodyFailed, logAttrError, err.Error())
	}
}

// StatusForError maps repository errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, docstore.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrDuplicateKey):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func statusFor(found bool) int {
	if found {
		return http.StatusOK
	}

	return http.StatusNoContent
}

func durationMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
