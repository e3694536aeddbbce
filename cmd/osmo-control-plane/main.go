// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/osmo-project/control-plane/internal/backendsession"
	"github.com/osmo-project/control-plane/internal/barrier"
	"github.com/osmo-project/control-plane/internal/broker"
	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/filestore"
	"github.com/osmo-project/control-plane/internal/frontendworker"
	"github.com/osmo-project/control-plane/internal/obs"
	"github.com/osmo-project/control-plane/internal/redisclient"
	"github.com/osmo-project/control-plane/internal/renderer"
	"github.com/osmo-project/control-plane/internal/store"
	"github.com/osmo-project/control-plane/internal/store/migrations"
)

var version = "dev"

func main() {
	var configPath string
	var listenAddr string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&listenAddr, "listen", ":8090", "Agent protocol listen address")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(obs.TracingConfig{
		Enabled:          cfg.Observability.Tracing.Enabled,
		Endpoint:         cfg.Observability.Tracing.Endpoint,
		Environment:      cfg.Observability.Tracing.Environment,
		SamplingStrategy: cfg.Observability.Tracing.SamplingStrategy,
		SamplingRate:     cfg.Observability.Tracing.SamplingRate,
	})
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	pg, err := store.Open(cfg.Store)
	if err != nil {
		logger.Fatal("store connect failed", obs.Err(err))
	}
	defer pg.Close()
	if err := migrations.Up(pg.DB()); err != nil {
		logger.Fatal("migrations failed", obs.Err(err))
	}

	rdb := redisclient.New(cfg.Broker.Redis)
	defer rdb.Close()

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	brk := broker.New(rdb, logger, workerID, cfg.Broker.BRPopLPushTimeout, 5*time.Minute)

	bar := barrier.New(rdb)

	archive, err := filestore.NewS3(cfg.FileStore, logger)
	if err != nil {
		logger.Warn("s3 filestore unavailable, falling back to in-memory archive", obs.Err(err))
	}
	var archiveStore filestore.FileStore = archive
	if archive == nil {
		archiveStore = filestore.NewMemory()
	}
	logStream := filestore.NewMemory()

	handlers := &frontendworker.Handlers{
		Store:     pg,
		Broker:    brk,
		FileStore: archiveStore,
		LogStream: logStream,
		Barrier:   bar,
		Renderer:  renderer.New(cfg.Renderer),
		Log:       logger,
		Cfg:       cfg,
	}

	pool := frontendworker.NewPool(brk, logger, cfg.FrontendWorker, cfg.Broker)
	frontendworker.RegisterAll(pool, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	// Only the FRONTEND queue ever carries delayed entries (§4.2.1
	// CheckQueueTimeout/CheckRunTimeout/UpdateGroup requeue); backend
	// queues are dispatched straight from BackendSession.pumpJobs.
	monitor := broker.NewDelayedMonitor(rdb, logger, cfg.Broker.DelayedSweep, []string{broker.FrontendQueueKey})
	go monitor.Run(ctx)

	readyCheck := func(c context.Context) error { return pg.Ping(c) }
	httpSrv := obs.StartHTTPServer(cfg.Observability.MetricsPort, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	bsDeps := backendsession.Deps{
		Store:    pg,
		Broker:   brk,
		Handlers: handlers,
		Log:      logger,
		Cfg:      cfg,
	}
	manager := backendsession.NewManager(bsDeps)
	router := mux.NewRouter()
	manager.RegisterRoutes(router)
	agentSrv := &http.Server{Addr: listenAddr, Handler: router}
	go func() {
		logger.Info("agent protocol listening", obs.String("addr", listenAddr))
		if err := agentSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("agent server error", obs.Err(err))
			cancel()
		}
	}()

	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("frontend worker pool error", obs.Err(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = agentSrv.Shutdown(shutdownCtx)
}
