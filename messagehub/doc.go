// Package messagehub is the event bus. Outgoing events are queued per (event name, options) key,
// debounced and flushed as one batch per key to the transport. Incoming batches are decoded through
// a Registry and dispatched to subscriptions whose predicates all pass.
//
// Wiring it to a transport:
//
//	svc, _ := transport.NewService(endpoints, transport.WithLogger(logger))
//	hub, _ := messagehub.NewHub(svc, messagehub.WithLogger(logger))
//	go svc.Run(ctx)
//	go hub.Run(ctx)
//
//	sub, _ := hub.Subscribe(docstore.KindChanged.EventName(),
//		messagehub.When(func(e docstore.ChangeEvent) bool { return e.Matches("db", "Invoice") }),
//		messagehub.Handle(func(ctx context.Context, e docstore.ChangeEvent) error { return reload(ctx) }),
//	)
//	defer sub.Close()
package messagehub
