package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/homebus/homebus/internal/api"
	"github.com/homebus/homebus/internal/binding"
	"github.com/homebus/homebus/internal/bindings/heartbeat"
	"github.com/homebus/homebus/internal/config"
	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/events"
	"github.com/homebus/homebus/internal/metrics"
	"github.com/homebus/homebus/internal/monitor"
	"github.com/homebus/homebus/internal/node"
	"github.com/homebus/homebus/internal/server"
	"github.com/homebus/homebus/internal/threadpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runServe(parent context.Context, configPath string) error {
	cfg, warn, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := config.InitLogger(cfg.Logging)
	for _, w := range multierr.Errors(warn) {
		logger.Warn("Ignoring environment override", "error", w)
	}

	nodeID := node.Resolve(cfg.Node)
	logger.Info("Starting homebus",
		"version", version,
		"node", nodeID.String(),
		"config", configPath,
	)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	pools := threadpool.NewRegistry(cfg.ThreadPool.Pools(),
		threadpool.WithLogger(logger),
		threadpool.WithMetrics(m),
	)
	eventsPool, err := pools.Pool(threadpool.Events)
	if err != nil {
		return err
	}
	background, err := pools.Scheduled(threadpool.Background)
	if err != nil {
		return err
	}

	bus := eventbus.New(eventsPool, logger, m)
	eventLogger := monitor.NewEventLogger(logger)
	eventLogger.Attach(bus)

	manager := binding.NewManager(bus, background, nodeID, logger, m)
	manager.Attach(bus)

	if err := manager.Register(heartbeat.New(logger, nil)); err != nil {
		return fmt.Errorf("register heartbeat binding: %w", err)
	}

	err = pools.Submit(threadpool.Bindings, func(ctx context.Context) {
		if err := seedConfig(ctx, bus, nodeID, cfg); err != nil {
			logger.Error("Failed to seed binding configuration", "error", err)
		}
	})
	if err != nil {
		return err
	}

	postSystemEvent(bus, nodeID, events.SystemStarted, logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Diagnostics.Enabled {
		router := api.NewRouter(api.Dependencies{
			Node:     nodeID,
			Bindings: manager,
			Pools:    pools,
			Bus:      bus,
			Gatherer: promReg,
			Metrics:  m,
			Logger:   logger,
		})
		srv := server.NewServer(cfg.Diagnostics.Addr(), router,
			cfg.Diagnostics.ReadTimeout(), cfg.Diagnostics.WriteTimeout(), logger)
		g.Go(func() error { return srv.Serve(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	logger.Info("Shutting down")

	postSystemEvent(bus, nodeID, events.SystemShutdownInitiated, logger)
	manager.Shutdown()
	manager.Detach(bus)
	eventLogger.Detach(bus)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := pools.Shutdown(shutdownCtx); err != nil {
		logger.Error("Thread pools did not stop cleanly", "error", err)
		runErr = multierr.Append(runErr, err)
	}

	logger.Info("Stopped")
	return runErr
}

func postSystemEvent(bus *eventbus.Bus, n node.Identity, typ events.SystemEventType, logger *slog.Logger) {
	e, err := events.NewSystemEvent(n, typ, "")
	if err == nil {
		err = bus.PostSystemEvent(e)
	}
	if err != nil {
		logger.Warn("Failed to post system event", "type", typ.String(), "error", err)
	}
}

type configPoster interface {
	PostConfigurationEvent(e *events.ConfigurationEvent) error
}

// seedConfig posts the bindings and items sections of cfg as configuration
// events, properties first, in a stable order.
func seedConfig(ctx context.Context, bus configPoster, n node.Identity, cfg *config.Config) error {
	var errs error

	bindingTypes := make([]string, 0, len(cfg.Bindings))
	for typ := range cfg.Bindings {
		bindingTypes = append(bindingTypes, typ)
	}
	slices.Sort(bindingTypes)

	for _, typ := range bindingTypes {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		props := cfg.Bindings[typ]
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		doc := events.FormatProperties(props, keys)
		errs = multierr.Append(errs, bus.PostConfigurationEvent(events.NewServiceConfigEvent(n, typ, doc)))
	}

	for _, item := range cfg.Items {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		e := events.NewItemConfigEvent(n, item.Binding, item.Item, item.Config)
		errs = multierr.Append(errs, bus.PostConfigurationEvent(e))
	}

	return errs
}
