package docstore

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of all validation failures. Validation errors are never retried.
var ErrValidation = errors.New("validation failed")

var (
	ErrMissingID           = errors.New("document has no id")
	ErrStorageIDPresent    = errors.New("document already carries the storage primary key")
	ErrMissingStorageID    = errors.New("stored document has no primary key")
	ErrEmptyFilter         = errors.New("filter node is empty")
	ErrAmbiguousFilter     = errors.New("filter node mixes composite and leaf fields")
	ErrMalformedFilter     = errors.New("filter is not valid JSON")
	ErrUnknownOperator     = errors.New("unknown filter operator")
	ErrUnknownDataType     = errors.New("unknown filter data type")
	ErrMissingProperty     = errors.New("filter leaf has no property")
	ErrMissingValue        = errors.New("filter leaf requires a value")
	ErrUnexpectedValue     = errors.New("filter leaf must not carry a value")
	ErrMissingValues       = errors.New("filter leaf requires values")
	ErrUnexpectedValues    = errors.New("filter leaf must not carry values")
	ErrUnsupportedDataType = errors.New("data type is not supported by operator")
	ErrInvalidLiteral      = errors.New("filter literal cannot be parsed")
	ErrUnknownField        = errors.New("unknown model field")
	ErrUnknownEventKind    = errors.New("unknown change event kind")
	ErrDecodingEventFailed = errors.New("decoding change event failed")
)

var (
	ErrDuplicateKey            = errors.New("duplicate document key")
	ErrNilDatabaseConnection   = errors.New("database connection must not be nil")
	ErrEmptyTableName          = errors.New("empty table name supplied")
	ErrBuildingQueryFailed     = errors.New("building query failed")
	ErrQueryingDocumentsFailed = errors.New("querying documents failed")
	ErrScanningDBRowFailed     = errors.New("scanning db row failed")
	ErrDecodingDocumentFailed  = errors.New("decoding stored document failed")
	ErrEncodingDocumentFailed  = errors.New("encoding document failed")
	ErrUpsertFailed            = errors.New("upserting document failed")
	ErrDeleteFailed            = errors.New("deleting document failed")
	ErrEnsureSchemaFailed      = errors.New("creating schema failed")
)

// validationError marks err as a validation failure and names the offending filter or document field.
func validationError(err error, field string, detail string) error {
	if detail == "" {
		return errors.Join(ErrValidation, err, fmt.Errorf("field %q", field))
	}

	return errors.Join(ErrValidation, err, fmt.Errorf("field %q: %s", field, detail))
}
