package postgresengine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

const (
	metricQueryDuration     = "docsync_query_duration_seconds"
	metricUpsertDuration    = "docsync_upsert_duration_seconds"
	metricDeleteDuration    = "docsync_delete_duration_seconds"
	metricDocumentsReturned = "docsync_documents_returned"
	metricDatabaseErrors    = "docsync_database_errors_total"
	metricIdentityMerges    = "docsync_identity_merges_total"

	spanNameQuery  = "docsync.query"
	spanNameUpsert = "docsync.upsert"
	spanNameDelete = "docsync.delete"

	spanAttrOperation     = "operation"
	spanAttrDatabaseName  = "database_name"
	spanAttrEntityName    = "entity_name"
	spanAttrDocumentID    = "document_id"
	spanAttrDocumentCount = "document_count"
	spanAttrWritePath     = "write_path"
	spanAttrDurationMS    = "duration_ms"
	spanAttrErrorType     = "error_type"

	labelStatus = "status"

	statusSuccess = "success"
	statusError   = "error"

	operationGetAll      = "get_all"
	operationGetByFilter = "get_by_filter"
	operationGetByID     = "get_by_id"
	operationUpsert      = "upsert"
	operationDelete      = "delete"

	errorTypeValidation    = "validation"
	errorTypeBuildQuery    = "build_query"
	errorTypeDatabaseQuery = "database_query"
	errorTypeDatabaseExec  = "database_exec"
	errorTypeRowScan       = "row_scan"
	errorTypeDecode        = "decode"
	errorTypeDuplicateKey  = "duplicate_key"
	errorTypeUnknown       = "unknown"
)

// logQueryWithDuration logs rendered SQL with its execution time at debug level.
func (r *Repository) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	if r.logger != nil {
		r.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, r.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}

	if r.contextualLogger != nil {
		r.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, r.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level.
func (r *Repository) logOperation(ctx context.Context, action string, args ...any) {
	if r.logger != nil {
		r.logger.Info(logMsgOperation+action, args...)
	}

	if r.contextualLogger != nil {
		r.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

func (r *Repository) logWarn(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if r.logger != nil {
		r.logger.Warn(message, allArgs...)
	}

	if r.contextualLogger != nil {
		r.contextualLogger.WarnContext(ctx, message, allArgs...)
	}
}

func (r *Repository) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if r.logger != nil {
		r.logger.Error(message, allArgs...)
	}

	if r.contextualLogger != nil {
		r.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (r *Repository) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (r *Repository) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if r.metricsCollector == nil {
		return
	}

	if contextual, ok := r.metricsCollector.(docstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	r.metricsCollector.RecordDuration(metric, duration, labels)
}

func (r *Repository) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if r.metricsCollector == nil {
		return
	}

	if contextual, ok := r.metricsCollector.(docstore.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	r.metricsCollector.RecordValue(metric, value, labels)
}

func (r *Repository) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if r.metricsCollector == nil {
		return
	}

	if contextual, ok := r.metricsCollector.(docstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	r.metricsCollector.IncrementCounter(metric, labels)
}

// === Operation Observer ===
// One observer per repository call owns the span and the metrics of that call.

type operationObserver struct {
	r              *Repository
	ctx            context.Context
	operation      string
	durationMetric string
	span           docstore.SpanContext
	start          time.Time
}

func (r *Repository) observe(
	ctx context.Context,
	spanName, durationMetric, operation, databaseName, entityName, id string,
) (*operationObserver, context.Context) {

	o := &operationObserver{
		r:              r,
		operation:      operation,
		durationMetric: durationMetric,
		start:          time.Now(),
	}

	if r.tracingCollector != nil {
		attrs := map[string]string{
			spanAttrOperation:    operation,
			spanAttrDatabaseName: databaseName,
			spanAttrEntityName:   entityName,
		}

		if id != "" {
			attrs[spanAttrDocumentID] = id
		}

		ctx, o.span = r.tracingCollector.StartSpan(ctx, spanName, attrs)
	}

	o.ctx = ctx

	return o, ctx
}

func (o *operationObserver) labels(status string) map[string]string {
	return map[string]string{spanAttrOperation: o.operation, labelStatus: status}
}

// success finishes the span and records duration plus the number of documents returned or written.
func (o *operationObserver) success(documentCount int, attrs map[string]string) {
	duration := time.Since(o.start)

	o.r.recordDuration(o.ctx, o.durationMetric, duration, o.labels(statusSuccess))
	o.r.recordValue(o.ctx, metricDocumentsReturned, float64(documentCount), o.labels(statusSuccess))

	if o.span == nil {
		return
	}

	o.span.SetStatus(statusSuccess)
	o.span.AddAttribute(spanAttrDocumentCount, strconv.Itoa(documentCount))
	o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", o.r.toMilliseconds(duration)))

	finishAttrs := map[string]string{spanAttrDocumentCount: strconv.Itoa(documentCount)}
	for k, v := range attrs {
		o.span.AddAttribute(k, v)
		finishAttrs[k] = v
	}

	o.r.tracingCollector.FinishSpan(o.span, statusSuccess, finishAttrs)
}

// failure finishes the span with the error type and counts the database error.
func (o *operationObserver) failure(errorType string) {
	duration := time.Since(o.start)

	o.r.recordDuration(o.ctx, o.durationMetric, duration, o.labels(statusError))

	if errorType != errorTypeValidation {
		labels := o.labels(statusError)
		labels[spanAttrErrorType] = errorType
		o.r.incrementCounter(o.ctx, metricDatabaseErrors, labels)
	}

	if o.span == nil {
		return
	}

	o.span.SetStatus(statusError)
	o.span.AddAttribute(spanAttrErrorType, errorType)
	o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", o.r.toMilliseconds(duration)))

	o.r.tracingCollector.FinishSpan(o.span, statusError, map[string]string{spanAttrErrorType: errorType})
}
