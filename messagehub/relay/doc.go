// Package relay is the broker end of the websocket transport: it accepts client connections
// and forwards every broadcast frame to all other connected clients, and back to the sender
// unless the frame asks for except_sender.
//
// A Server is an http.Handler, so it can be mounted on any mux:
//
//	srv := relay.NewServer(relay.WithLogger(slog.Default()))
//	go srv.Run(ctx)
//	http.Handle("/messagehub", srv)
package relay
