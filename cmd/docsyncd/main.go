// Command docsyncd serves the document store over HTTP and publishes change events to the message hubs.
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

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/realtime-docsync-go/config"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/httpapi"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/oteladapters"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/postgresengine"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/promadapters"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/transport"
)

const (
	serviceName     = "docsyncd"
	serviceVersion  = "0.1.0"
	shutdownTimeout = 10 * time.Second
	readTimeout     = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("%s: %v", serviceName, err)
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
	metrics := promadapters.NewMetricsCollector(registry)

	transportService, err := transport.NewService(endpointConfigs(cfg.MessageHubURLs), transport.WithLogger(logger))
	if err != nil {
		return err
	}

	hub, err := messagehub.NewHub(transportService, messagehub.WithLogger(logger))
	if err != nil {
		return err
	}

	repositoryOptions := []postgresengine.Option{
		postgresengine.WithTableName(cfg.TableName),
		postgresengine.WithLogger(logger),
		postgresengine.WithMetrics(metrics),
		postgresengine.WithEventQueue(hub),
	}

	if cfg.OTLPEndpoint != "" {
		providers, err := config.NewObservabilityProviders(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer func() { _ = providers.Shutdown() }()

		repositoryOptions = append(repositoryOptions,
			postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger(serviceName)),
			postgresengine.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(serviceName))),
		)
	}

	repository, closePools, err := newRepository(ctx, cfg, repositoryOptions)
	if err != nil {
		return err
	}
	defer closePools()

	if err = repository.EnsureSchema(ctx); err != nil {
		return err
	}

	api, err := httpapi.NewHandler(repository, httpapi.WithLogger(logger))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promadapters.Handler(registry))
	mux.Handle("/", api)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: readTimeout,
	}

	logger.Info("docsyncd starting",
		"listen_addr", cfg.ListenAddr,
		"table_name", repository.TableName(),
		"message_hub_urls", len(cfg.MessageHubURLs),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return transportService.Run(gctx)
	})

	g.Go(func() error {
		return hub.Run(gctx)
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

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if flushErr := hub.Flush(flushCtx); flushErr != nil {
		logger.Warn("pending change events were not delivered", "pending", hub.Pending(), "error", flushErr.Error())
	}

	logger.Info("docsyncd stopped")

	return err
}

// newRepository connects the primary pool and, when configured, a read replica.
func newRepository(
	ctx context.Context,
	cfg config.Config,
	options []postgresengine.Option,
) (*postgresengine.Repository, func(), error) {
	primary, err := config.NewPGXPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	if cfg.PostgresReplicaDSN == "" {
		repository, err := postgresengine.NewRepositoryFromPGXPool(primary, options...)
		if err != nil {
			primary.Close()
			return nil, nil, err
		}

		return repository, primary.Close, nil
	}

	replica, err := config.NewPGXPool(ctx, cfg.PostgresReplicaDSN)
	if err != nil {
		primary.Close()
		return nil, nil, err
	}

	closePools := func() {
		replica.Close()
		primary.Close()
	}

	repository, err := postgresengine.NewRepositoryFromPGXPoolAndReplica(primary, replica, options...)
	if err != nil {
		closePools()
		return nil, nil, err
	}

	return repository, closePools, nil
}

func endpointConfigs(urls []string) []transport.EndpointConfig {
	configs := make([]transport.EndpointConfig, 0, len(urls))
	for _, url := range urls {
		configs = append(configs, transport.EndpointConfig{URL: url})
	}

	return configs
}
