// Package transport maintains one connection per configured message hub endpoint and
// carries batched event frames over them.
//
// Every endpoint runs an independent reconnect loop. Outgoing frames are filtered per
// endpoint by an allow predicate on the event name. Incoming frames are dispatched to
// registered receivers whose event name prefixes match.
//
// Supported endpoint schemes:
//   - ws://, wss://, http://, https:// (websocket, the http schemes are mapped to ws)
//   - nats:// (frames are published on the subject v1.broadcast_message)
//
// A frame is a JSON array on the single channel v1:broadcast_message:
//
//	["v1:broadcast_message", "<event name>", {"except_sender": false}, 2, "<json 0>", "<json 1>"]
package transport
