// Copyright (c) 2026 City Access Media

// Package daemon is the orchestrator's composition root: it wires the
// shared store, broker, pipeline collaborators, scheduler, worker pool, and
// HTTP surface together from a resolved config.Config and runs them until
// the process is asked to shut down.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cityaccess/vod-orchestrator/internal/alert"
	"github.com/cityaccess/vod-orchestrator/internal/broker"
	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/downloader"
	"github.com/cityaccess/vod-orchestrator/internal/health"
	"github.com/cityaccess/vod-orchestrator/internal/log"
	"github.com/cityaccess/vod-orchestrator/internal/maintenance"
	"github.com/cityaccess/vod-orchestrator/internal/media"
	"github.com/cityaccess/vod-orchestrator/internal/metrics"
	netutil "github.com/cityaccess/vod-orchestrator/internal/platform/net"
	"github.com/cityaccess/vod-orchestrator/internal/pipeline"
	"github.com/cityaccess/vod-orchestrator/internal/scheduler"
	"github.com/cityaccess/vod-orchestrator/internal/store"
	"github.com/cityaccess/vod-orchestrator/internal/telemetry"
	"github.com/cityaccess/vod-orchestrator/internal/transcriber"
	"github.com/cityaccess/vod-orchestrator/internal/vodclient"
	"github.com/cityaccess/vod-orchestrator/internal/worker"
)

// Version is stamped by the linker at build time.
var Version = "dev"

// App holds every long-running component the daemon owns, wired once at
// startup by New and torn down together by Shutdown, which Run calls once
// its context is cancelled.
type App struct {
	cfg *config.Config

	telemetry *telemetry.Provider
	kv        store.KVStore
	brk       broker.Broker
	overflow  *broker.OverflowStore
	health    *health.Manager
	sched     *scheduler.Scheduler
	pool      *worker.Pool
	watcher   *maintenance.OutputWatcher
	server    *http.Server
	counters  *store.CityCounters

	closers []func() error
}

// New resolves every collaborator from cfg. It does not start the
// scheduler, worker pool, output watcher, or HTTP server; call Run to do
// that.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.WithComponent("daemon")
	a := &App{cfg: cfg}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEnabled,
		ServiceName:    "vod-orchestrator",
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.OTLPEndpoint,
		SamplingRate:   1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: telemetry: %w", err)
	}
	a.telemetry = tp

	kv, brokerImpl, pingFn, err := connectBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.kv = kv
	a.brk = brokerImpl

	overflow, err := broker.NewOverflowStore(cfg.OverflowDir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", cfg.OverflowDir).Msg("daemon: overflow store unavailable, workers run without crash recovery")
	} else {
		a.overflow = overflow
		a.closers = append(a.closers, overflow.Close)
	}

	ledger := store.NewLedger(kv, cfg.DedupTTLHours)
	cache := store.NewDownloadCache(kv, 6*time.Hour)
	a.counters = store.NewCityCounters(kv)

	dl := downloader.New(downloader.Options{Cache: cache, OutboundPolicy: outboundPolicyFromConfig(cfg)})
	vc := vodclient.New(cfg.VODPlatformURL)
	prober := media.NewProber(cfg.FFprobePath)
	remuxer := media.NewRemuxer(cfg.FFmpegPath)
	tr := transcriber.NewCLIAdapter(cfg.TranscriberPath)
	sink := alert.New(cfg.WebhookURL)

	pl := &pipeline.Pipeline{
		Cities:      cfg.Cities,
		OutputDir:   cfg.OutputDir,
		Prober:      prober,
		Remuxer:     remuxer,
		Transcriber: tr,
		VODClient:   vc,
		Downloader:  dl,
		Alerts:      sink,
	}

	a.sched = scheduler.New(a.brk)

	pool := &worker.Pool{
		Broker:      a.brk,
		Concurrency: cfg.WorkerConcurrency,
		Overflow:    a.overflow,
	}
	dispatcher := worker.NewDispatcher()
	worker.RegisterDefaults(dispatcher, worker.Deps{
		Cities:       cfg.Cities,
		Ledger:       ledger,
		Broker:       a.brk,
		Pipeline:     pl,
		Pool:         pool,
		CityCounters: a.counters,
	})
	pool.Dispatcher = dispatcher
	a.pool = pool

	hm := health.NewManager(Version)
	hm.RegisterChecker(health.NewStorageChecker(cfg.Cities))
	hm.RegisterChecker(health.NewBrokerChecker(pingFn))
	hm.RegisterChecker(health.NewVODClientChecker(vc.TestReachability))
	hm.RegisterChecker(health.NewWorkerPresenceChecker(pool.ActiveCount))
	a.health = hm
	// Overrides RegisterDefaults' nil-HealthFunc binding: the manager can't
	// exist until pool.ActiveCount is available, so this wiring has to
	// happen after RegisterDefaults rather than through Deps.
	dispatcher.Register(broker.KindHealthAggregate, func(ctx context.Context, args map[string]any) (any, error) {
		return hm.Health(ctx, true), nil
	})

	a.watcher = maintenance.NewOutputWatcher(cfg.Cities, a.brk)

	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// outboundPolicyFromConfig builds the downloader's SSRF allowlist from cfg,
// mirroring xg2g's own config-to-policy translation.
func outboundPolicyFromConfig(cfg *config.Config) netutil.OutboundPolicy {
	return netutil.OutboundPolicy{
		Enabled: cfg.OutboundEnabled,
		Allow: netutil.OutboundAllowlist{
			Hosts:   append([]string(nil), cfg.OutboundAllowHosts...),
			CIDRs:   append([]string(nil), cfg.OutboundAllowCIDRs...),
			Ports:   append([]int(nil), cfg.OutboundAllowPorts...),
			Schemes: append([]string(nil), cfg.OutboundAllowSchemes...),
		},
	}
}

// connectBackends builds the KVStore and Broker pair. A "memory://" broker
// URL selects the in-process backing used for local/dev runs; anything
// else is treated as a Redis connection string shared by both the store
// and the broker.
func connectBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.KVStore, broker.Broker, func(context.Context) error, error) {
	if cfg.BrokerURL == "memory://" {
		kv := store.NewMemoryStore(time.Minute)
		return kv, broker.NewMemoryBroker(256), nil, nil
	}

	kv, err := store.NewRedisStore(ctx, cfg.BrokerURL, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("daemon: connecting shared store: %w", err)
	}

	opts, err := redis.ParseURL(cfg.BrokerURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("daemon: invalid broker url: %w", err)
	}
	client := redis.NewClient(opts)
	brk := broker.NewRedisBroker(client)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return kv, brk, ping, nil
}

func (a *App) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware())
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/healthz", a.health.ServeHealth)
	r.Get("/readyz", a.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/metrics.json", a.serveMetricsSnapshot)

	return r
}

// serveMetricsSnapshot answers the read-only JSON metrics surface:
// {timestamp, counters: {...}, city_enqueued_total: {city_id: int}}. The
// per-city total is read from the shared store, not the process-local
// mirror metrics.GetSnapshot carries, so it reflects every worker process
// sharing this broker rather than just the one serving the request.
func (a *App) serveMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponent("daemon")
	snapshot := metrics.GetSnapshot()

	if a.counters != nil {
		cityTotals, err := a.counters.Snapshot(r.Context())
		if err != nil {
			logger.Warn().Err(err).Msg("daemon: shared per-city counter snapshot failed, serving process-local totals")
		} else {
			snapshot.CityEnqueuedTotal = cityTotals
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		logger.Warn().Err(err).Msg("daemon: encoding metrics snapshot failed")
	}
}

// Run starts every long-running component and blocks until ctx is
// cancelled, then shuts everything down in reverse dependency order.
func (a *App) Run(ctx context.Context) error {
	logger := log.WithComponent("daemon")

	if err := a.pool.RecoverOverflow(ctx); err != nil {
		logger.Warn().Err(err).Msg("daemon: overflow recovery failed, starting anyway")
	}

	if err := a.sched.RegisterDefaults(ctx); err != nil {
		return fmt.Errorf("daemon: registering scheduler defaults: %w", err)
	}
	a.sched.Start()

	go a.pool.Run(ctx)
	go func() {
		if err := a.watcher.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("daemon: output watcher exited")
		}
	}()

	go func() {
		logger.Info().Str("addr", a.cfg.ListenAddr).Msg("daemon: http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("daemon: http server failed")
		}
	}()

	<-ctx.Done()
	return a.Shutdown()
}

// Shutdown tears down every component New created. It is idempotent-safe
// to call even if Run never started the HTTP server.
func (a *App) Shutdown() error {
	logger := log.WithComponent("daemon")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.sched != nil {
		a.sched.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("daemon: http server shutdown")
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("daemon: telemetry shutdown")
		}
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logger.Warn().Err(err).Msg("daemon: component close failed")
		}
	}
	return nil
}
