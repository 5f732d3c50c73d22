// Package docstore provides the core abstractions shared by the document repository,
// the collection clients and the client cache.
//
// The package defines:
//   - Document: the transfer form of a stored document and its conversion to and from storage form
//   - Filter: a serializable boolean expression over document properties, with a builder,
//     validation and in-memory evaluation
//   - ChangeEvent: the notifications emitted when documents are inserted, updated or deleted
//   - Model and BaseModel: the typed client-side view of a document
//   - FieldTable: static, name-keyed accessors for typed model properties
//
// Common usage pattern:
//
//	filter := docstore.And(
//		docstore.Equals("customer", "ACME"),
//		docstore.GreaterOrEqualLong("amount", 100),
//		docstore.Not(docstore.EqualsBool("archived", true)),
//	)
//
//	docs, err := repository.GetByFilter(ctx, "sales", "Invoice", filter)
//	if err != nil {
//		// handle error
//	}
package docstore
