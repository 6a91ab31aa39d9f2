// Command collectiond runs a demo HTTP server exposing the collection
// engine's wire contract, backed by an in-memory record store. It exists to
// exercise pkg/transport/httptransport, internal/dispatcher, internal/store,
// pkg/collection, and pkg/live end to end; it is not a production service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/collectionengine/internal/config"
	"github.com/vitaliisemenov/collectionengine/internal/dispatcher"
	"github.com/vitaliisemenov/collectionengine/internal/logging"
	"github.com/vitaliisemenov/collectionengine/internal/store"
	"github.com/vitaliisemenov/collectionengine/internal/telemetry"
	"github.com/vitaliisemenov/collectionengine/pkg/cache"
	"github.com/vitaliisemenov/collectionengine/pkg/cache/rediscache"
	"github.com/vitaliisemenov/collectionengine/pkg/collection"
	"github.com/vitaliisemenov/collectionengine/pkg/live"
	"github.com/vitaliisemenov/collectionengine/pkg/transport"
	"github.com/vitaliisemenov/collectionengine/pkg/transport/httptransport"
)

const defaultScope = "default"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "collectiond",
		Short: "Demo server for the offline-first collection engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("collectiond: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(cfg.Metrics.Namespace, reg)

	notes := store.New[Note](logger)
	disp := &dispatcher.Dispatcher[Note, NoteQuery]{
		Fetch: func(ctx context.Context, scope string, _ *NoteQuery) ([]Note, error) {
			return notes.List(scope), nil
		},
		Create: func(ctx context.Context, scope string, n Note) (Note, error) {
			if n.ID == "" {
				n.ID = uuid.New().String()
			}
			n.UpdatedAt = time.Now()
			notes.Put(scope, n.ID, n)
			return n, nil
		},
		Update: func(ctx context.Context, scope string, id string, n Note) (Note, error) {
			n.ID = id
			n.UpdatedAt = time.Now()
			notes.Put(scope, id, n)
			return n, nil
		},
		Remove: func(ctx context.Context, scope string, id string) error {
			return notes.Delete(scope, id)
		},
		Logger: logger,
	}

	handler := disp.Handler()

	cors := httptransport.DefaultCORSConfig()
	router := httptransport.NewRouter[Note, NoteQuery]("/api/notes", handler, httptransport.Options{
		Logger: logger,
		RateLimit: httptransport.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Swagger:     true,
		CORS:        &cors,
		Compression: true,
	})
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// A server-side Collection wraps the same handler in-process and feeds /ws
	// without a round trip through the HTTP adapter. It fetches the store when
	// it starts; writes that arrive through the HTTP adapter do not make it
	// refetch, so /ws clients do not see those writes as they happen.
	var l2 cache.L2[[]Note]
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		l2 = rediscache.New[[]Note](client, cfg.Redis.TTL, "notes")
		logger.Info("L2 fetch cache enabled", "addr", cfg.Redis.Addr)
	}

	scope := defaultScope
	mirror := collection.New(collection.Config[Note, NoteQuery]{
		ID:            "notes-mirror",
		SyncDebounce:  cfg.Engine.SyncDebounce,
		SyncRetries:   cfg.Engine.SyncRetries,
		FetchRetries:  cfg.Engine.FetchRetries,
		CacheCapacity: cfg.Engine.CacheCapacity,
		CacheTTL:      cfg.Engine.CacheTTL,
		L2Cache:       l2,
		IDOf:          func(n Note) string { return n.ID },
		Metrics:       metrics,
		Handler: func(ctx context.Context, req transport.Request[Note, NoteQuery]) (transport.Response[Note], error) {
			req.Scope = &scope
			return handler(ctx, req)
		},
		RefetchOnMutation: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := live.NewHub[Note, NoteQuery](logger, nil)
	unsubscribe := hub.Subscribe(mirror)
	defer unsubscribe()
	go hub.Run(ctx)
	router.Handle("/ws", hub)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("collectiond listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("collectiond shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("collectiond: graceful shutdown: %w", err)
	}
	logger.Info("collectiond stopped")
	return nil
}
