// Command relay runs the websocket fan-out relay that docsync message hub endpoints connect to.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/realtime-docsync-go/config"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/promadapters"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/relay"
)

const (
	shutdownTimeout = 10 * time.Second
	readTimeout     = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("relay: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	registry := promadapters.NewRegistry()

	relayOptions := []relay.Option{relay.WithLogger(logger), relay.WithRegisterer(registry)}
	if cfg.RelayToken != "" {
		relayOptions = append(relayOptions, relay.WithBearerToken(cfg.RelayToken))
	}

	relayServer := relay.NewServer(relayOptions...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promadapters.Handler(registry))
	mux.Handle("/", relayServer)

	server := &http.Server{
		Addr:              cfg.RelayAddr,
		Handler:           mux,
		ReadHeaderTimeout: readTimeout,
	}

	logger.Info("relay starting", "relay_addr", cfg.RelayAddr, "token_required", cfg.RelayToken != "")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return relayServer.Run(gctx)
	})

	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("relay stopped", "clients", relayServer.ClientCount())

	return err
}
