// Package agent provides the botreport runtime orchestrator.
// It manages the full lifecycle of the event bus, ingest sources, the
// reporter and the metrics/API servers.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/sureshkrishnan-v/botreport/internal/api"
	"github.com/sureshkrishnan-v/botreport/internal/cache"
	"github.com/sureshkrishnan-v/botreport/internal/config"
	"github.com/sureshkrishnan-v/botreport/internal/constants"
	"github.com/sureshkrishnan-v/botreport/internal/delivery"
	"github.com/sureshkrishnan-v/botreport/internal/event"
	"github.com/sureshkrishnan-v/botreport/internal/exporter"
	"github.com/sureshkrishnan-v/botreport/internal/filter"
	"github.com/sureshkrishnan-v/botreport/internal/ingest"
	"github.com/sureshkrishnan-v/botreport/internal/metrics"
	"github.com/sureshkrishnan-v/botreport/internal/quickop"
	"github.com/sureshkrishnan-v/botreport/internal/reporter"
	"github.com/sureshkrishnan-v/botreport/internal/supervisor"
)

// Runtime is the central orchestrator for botreport.
//
// Design pattern: Facade, a single entry point (Run) that orchestrates
// all subsystems. Also a Registry for extra ingest sources.
type Runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	bus      *event.Bus
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sources  []ingest.Source
	host     quickop.Host
	natsOpts []nats.Option
	reporter *reporter.Reporter
	ready    chan struct{}
}

// NewRuntime creates a new Runtime with the given configuration.
// The EventBus is created eagerly so sources can publish before Run.
func NewRuntime(cfg *config.Config, logger *zap.Logger) *Runtime {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		bus:      event.NewBus(cfg.Performance.EventBusBuffer, logger.Named("eventbus")),
		registry: reg,
		metrics:  metrics.New(reg),
		ready:    make(chan struct{}),
	}
}

// RegisterSource adds an ingest source (Registry pattern).
// Must be called before Run.
func (rt *Runtime) RegisterSource(s ingest.Source) {
	rt.sources = append(rt.sources, s)
}

// SetQuickOpHost overrides where quick operations go. Without it they are
// published to NATS when NATS is enabled and discarded otherwise.
func (rt *Runtime) SetQuickOpHost(h quickop.Host) {
	rt.host = h
}

// SetNATSOptions adds dial options for the NATS ingest connection
// (credentials, TLS, an in-process server).
func (rt *Runtime) SetNATSOptions(opts ...nats.Option) {
	rt.natsOpts = append(rt.natsOpts, opts...)
}

// EventBus returns the event bus that feeds the reporter.
func (rt *Runtime) EventBus() *event.Bus {
	return rt.bus
}

// Registry returns the Prometheus registry served on /metrics.
func (rt *Runtime) Registry() *prometheus.Registry {
	return rt.registry
}

// Ready is closed once the reporter is running and sources are started.
func (rt *Runtime) Ready() <-chan struct{} {
	return rt.ready
}

// Reporter returns the reporter; nil before Ready.
func (rt *Runtime) Reporter() *reporter.Reporter {
	return rt.reporter
}

// Run starts the full runtime lifecycle:
//  1. Connect optional backends (Redis, NATS)
//  2. Start the reporter (enable report, subscription, heartbeat)
//  3. Start the metrics exporter and API server
//  4. Start ingest sources
//  5. Wait for shutdown signal
//  6. Stop sources → close reporter → close bus → stop servers
func (rt *Runtime) Run(ctx context.Context) error {
	cfg := rt.cfg
	rt.logger.Info("botreport runtime starting",
		zap.String("version", constants.Version),
		zap.String("endpoint", metrics.EndpointHost(cfg.Report.PostURL)),
		zap.Int("sources_registered", len(rt.sources)))

	// Outcome store (optional, degrades gracefully)
	var outcomes *cache.Redis
	if cfg.Redis.Enabled {
		r, err := cache.NewRedis(cfg.Redis, rt.logger.Named("redis"))
		if err != nil {
			rt.logger.Warn("Redis unavailable, outcomes will not be stored", zap.Error(err))
		} else {
			outcomes = r
			defer outcomes.Close()
		}
	}

	bot := &botAccessor{id: cfg.Bot.ID, online: func() bool { return true }}
	host := rt.host

	// NATS ingest connects first so quick operations and online status
	// work from the enable report on.
	var natsSrc *ingest.NATS
	fail := func(err error) error {
		if natsSrc != nil {
			natsSrc.Close()
		}
		return err
	}
	if cfg.NATS.Enabled {
		n := ingest.NewNATS(cfg.NATS, rt.bus, cfg.Bot.ID, rt.logger.Named("nats"), rt.natsOpts...)
		if err := n.Connect(ctx); err != nil {
			return fmt.Errorf("nats ingest: %w", err)
		}
		natsSrc = n
		bot.online = n.Online
		if host == nil && cfg.NATS.QuickOpSubject != "" {
			host = quickop.NewNATSHost(n.Conn(), cfg.NATS.QuickOpSubject, rt.logger.Named("quickop"))
		}
		rt.sources = append([]ingest.Source{n}, rt.sources...)
	}
	if host == nil {
		host = quickop.Discard
	}

	flt, err := filter.NewCEL(cfg.Report.Filter, rt.logger.Named("filter"))
	if err != nil {
		return fail(fmt.Errorf("event filter: %w", err))
	}
	client, err := delivery.New(cfg.Delivery, rt.logger.Named("delivery"))
	if err != nil {
		return fail(fmt.Errorf("delivery client: %w", err))
	}
	defer client.Close()

	group := supervisor.New(cfg.Delivery.MaxInflight, rt.logger.Named("supervisor"))

	// Start reporter
	deps := reporter.Deps{
		Bot:     bot,
		Source:  rt.bus,
		Filter:  flt,
		Host:    host,
		Client:  client,
		Metrics: rt.metrics,
		Group:   group,
		Logger:  rt.logger,
	}
	if outcomes != nil {
		deps.Tap = outcomes
	}
	rep, err := reporter.New(ctx, cfg.ReporterConfig(), deps)
	if err != nil {
		return fail(fmt.Errorf("reporter: %w", err))
	}
	rt.reporter = rep

	// Start metrics exporter
	exp := exporter.New(cfg.Agent.MetricsAddr, rt.registry, rt.logger.Named("exporter"))
	group.Go(ctx, "exporter", exp.Run)

	// Start API server
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Addr, api.Deps{
			Publisher: rt.bus,
			Bus:       rt.bus,
			Reporter:  rep,
			Bot:       bot,
			Outcomes:  outcomes,
		}, rt.logger.Named("api"))
		group.Go(ctx, "api", func(context.Context) error { return apiServer.Start() })
	}

	// Start ingest sources
	var started []ingest.Source
	for _, s := range rt.sources {
		rt.logger.Info("Starting source", zap.String("source", s.Name()))
		if err := s.Start(ctx); err != nil {
			rt.logger.Error("Source start failed, skipping",
				zap.String("source", s.Name()), zap.Error(err))
			if natsSrc != nil && s == ingest.Source(natsSrc) {
				natsSrc.Close()
			}
			continue
		}
		started = append(started, s)
	}

	group.Go(ctx, "bus-stats", rt.collectStats)

	exp.SetReady(true)
	close(rt.ready)
	rt.logger.Info("botreport running",
		zap.String("reporter", rep.State().String()),
		zap.Int("sources", len(started)),
		zap.Bool("api", apiServer != nil),
		zap.Bool("redis", outcomes != nil))

	// Wait for shutdown signal
	<-ctx.Done()
	rt.logger.Info("Shutdown signal received")
	exp.SetReady(false)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer stopCancel()

	for _, s := range started {
		rt.logger.Debug("Stopping source", zap.String("source", s.Name()))
		if err := s.Stop(stopCtx); err != nil {
			rt.logger.Warn("Error stopping source",
				zap.String("source", s.Name()), zap.Error(err))
		}
	}

	if err := rep.Close(stopCtx); err != nil {
		rt.logger.Warn("Error closing reporter", zap.Error(err))
	}
	rt.bus.Close()

	if apiServer != nil {
		if err := apiServer.Stop(stopCtx); err != nil {
			rt.logger.Warn("Error stopping API server", zap.Error(err))
		}
	}

	// Exporter, stats collector, heartbeat and in-flight dispatches.
	group.Wait()

	st := rep.Stats()
	rt.logger.Info("botreport stopped",
		zap.Uint64("events_received", st.Received),
		zap.Uint64("dispatched", st.Dispatched),
		zap.Uint64("failed", st.Failed),
		zap.Uint64("events_published", rt.bus.Published()),
		zap.Uint64("events_dropped", rt.bus.Dropped()))

	return nil
}

// collectStats copies event bus statistics into Prometheus until ctx ends.
func (rt *Runtime) collectStats(ctx context.Context) error {
	ticker := time.NewTicker(constants.StatsCollectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := rt.bus.Stats()
			rt.metrics.SetBusStats(st.QueueDepth, rt.bus.Dropped())
		}
	}
}

// botAccessor reports the configured bot id and the ingest connection state.
type botAccessor struct {
	id     int64
	online func() bool
}

func (b *botAccessor) ID() int64    { return b.id }
func (b *botAccessor) Online() bool { return b.online() }
