// Package cache keeps a client-side replica of document collections and reconciles it with a
// docstore.Repository.
//
// Local writes land in the in-memory map immediately and are pushed by a single background worker.
// The worker also pulls the full remote set on every pass and merges it with last-write-wins
// semantics based on the update timestamp in meta_temp.
//
// Common usage pattern:
//
//	svc, _ := cache.NewService(cache.WithLogger(logger))
//	_ = svc.Register("Invoice", cache.Source{Repository: repo, DatabaseName: "sales", EntityName: "Invoice"})
//	go svc.Run(ctx)
//
//	_ = svc.Upsert("Invoice", docstore.Document{"id": "42", "amount": 100})
//	doc, found, _ := svc.Get("Invoice", "42") // visible before the push completes
package cache
