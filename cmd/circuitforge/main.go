package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	cfhttp "github.com/Strob0t/CircuitForge/internal/adapter/http"
	"github.com/Strob0t/CircuitForge/internal/adapter/latex"
	cfnats "github.com/Strob0t/CircuitForge/internal/adapter/nats"
	"github.com/Strob0t/CircuitForge/internal/adapter/nexar"
	cfotel "github.com/Strob0t/CircuitForge/internal/adapter/otel"
	"github.com/Strob0t/CircuitForge/internal/adapter/ristretto"
	"github.com/Strob0t/CircuitForge/internal/adapter/ws"
	"github.com/Strob0t/CircuitForge/internal/config"
	"github.com/Strob0t/CircuitForge/internal/hub"
	"github.com/Strob0t/CircuitForge/internal/logger"
	"github.com/Strob0t/CircuitForge/internal/pool"
	"github.com/Strob0t/CircuitForge/internal/port/broadcast"
	"github.com/Strob0t/CircuitForge/internal/port/partsearch"
	"github.com/Strob0t/CircuitForge/internal/resilience"
	"github.com/Strob0t/CircuitForge/internal/service"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	flags, err := parseFlags(os.Args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if flags.version {
		fmt.Println(Version)
		return
	}

	if err := run(flags); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(flags *cliFlags) error {
	cfg, err := config.LoadFrom(flags.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	flags.apply(cfg)

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	}))

	slog.Info("config loaded",
		"version", Version,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"parts", cfg.Parts.Enabled(),
		"sandbox_image", cfg.Render.SandboxImage,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOtel, err := cfotel.Setup(ctx, cfg.OTel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Render pipeline ---

	updates := hub.New(cfg.Hub.QueueSize)
	if err := metrics.ObserveSubscribers(updates.Len); err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	runner := latex.New(latex.Options{
		CompilerPath:  cfg.Render.CompilerPath,
		ConverterPath: cfg.Render.ConverterPath,
		Density:       cfg.Render.Density,
		Timeout:       cfg.Render.Timeout,
		WorkRoot:      cfg.Render.WorkRoot,
		IncludePDF:    cfg.Render.IncludePDF,
		SandboxImage:  cfg.Render.SandboxImage,
	}, nil)
	if err := runner.Check(); err != nil {
		// Renders will fail with internal errors until the tools appear.
		slog.Warn("render toolchain not found", "error", err)
	}

	renderPool := pool.New(pool.ResolveSize(cfg.Render.MaxConcurrent))
	slog.Info("render pool ready", "size", renderPool.Size())

	broadcasters := broadcast.Multi{updates}

	if cfg.NATS.URL != "" {
		queue, err := cfnats.Connect(ctx, cfg.NATS.URL, cfg.Logging.Service)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()

		relay := service.NewUpdateRelay(queue, cfg.NATS.Subject, updates)
		stopRelay, err := relay.Start(ctx)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer stopRelay()
		broadcasters = append(broadcasters, relay)
	}

	renders := service.NewRenderService(runner, renderPool, broadcasters, cfg.Render.QueueTimeout)
	renders.SetMetrics(metrics)

	// --- Part search ---

	var parts partsearch.Searcher
	if cfg.Parts.Enabled() {
		partCache, err := ristretto.New(cfg.Parts.CacheSizeMB << 20)
		if err != nil {
			return fmt.Errorf("parts cache: %w", err)
		}
		defer partCache.Close()

		breaker := resilience.NewBreaker("nexar", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
			resilience.WithFailurePredicate(func(err error) bool {
				return !errors.Is(err, partsearch.ErrNotFound)
			}))

		parts = nexar.New(nexar.Config{
			ClientID:        cfg.Parts.ClientID,
			ClientSecret:    cfg.Parts.ClientSecret,
			TokenURL:        cfg.Parts.TokenURL,
			GraphQLURL:      cfg.Parts.GraphQLURL,
			Timeout:         cfg.Parts.Timeout,
			CacheTTL:        cfg.Parts.CacheTTL,
			PreferredSeller: cfg.Parts.PreferredSeller,
		}, partCache, breaker)
		slog.Info("part search enabled")
	}

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Renders:   renders,
		Hub:       updates,
		Parts:     parts,
		Stream:    ws.NewHandler(updates, cfg.Server.CORSOrigins, cfg.Hub.Keepalive),
		BodyLimit: cfg.Server.BodyLimit,
		Keepalive: cfg.Hub.Keepalive,
	}

	router := cfhttp.NewRouter(cfhttp.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		ServiceName: cfg.Logging.Service,
		Telemetry:   cfg.OTel.Endpoint != "",
	}, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A compile may queue and then run two stages; streams clear their own deadline.
		WriteTimeout: cfg.Render.QueueTimeout + 2*cfg.Render.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	// Streams block on their subscription; ending the hub lets them return so
	// Shutdown does not wait out the whole timeout.
	srv.RegisterOnShutdown(updates.Close)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
