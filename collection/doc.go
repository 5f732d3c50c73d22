// Package collection provides typed access to one (database, entity) collection of the document store.
//
// Three backends implement Collection:
//
//   - Remote talks to the HTTP wire API of a docsyncd server
//   - Direct calls a docstore.Repository in the same process
//   - Cached reads from and writes to a cache.Service replica
//
// Open picks one of them from a Backend and a cached flag.
//
// Every read hides soft-deleted documents unless WithDeleted is passed. Remote and Direct do this by
// ANDing is_deleted == false into the filter; Cached evaluates the same filter in memory.
//
// Common usage pattern:
//
//	invoices, _ := collection.NewRemote[*InvoiceModel]("http://localhost:8080", "sales",
//		collection.WithTokenProvider(tokens), collection.WithEventHub(hub))
//
//	stored, _ := invoices.Upsert(ctx, &InvoiceModel{Number: "2024-7"})
//	open, _ := invoices.GetByFilter(ctx, docstore.EqualsBool("paid", false))
//
//	sub, _ := invoices.Subscribe()
//	defer sub.Close()
//	_ = sub.On(docstore.KindModelUpdated, onInvoiceUpdated)
package collection
