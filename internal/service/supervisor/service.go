package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/oshokin/security-zone/internal/api/grpc/health"
	httpapi "github.com/oshokin/security-zone/internal/api/http"
	"github.com/oshokin/security-zone/internal/config"
	"github.com/oshokin/security-zone/internal/coordinator"
	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/events/kafka"
	"github.com/oshokin/security-zone/internal/logger"
	"github.com/oshokin/security-zone/internal/loop"
	"github.com/oshokin/security-zone/internal/metrics"
	"github.com/oshokin/security-zone/internal/registry"
	"github.com/oshokin/security-zone/internal/repository/journal"
	"github.com/oshokin/security-zone/internal/repository/state"
	"github.com/oshokin/security-zone/internal/zone"
)

// stopTimeout bounds stopping the zones on shutdown.
const stopTimeout = 5 * time.Second

// errNoZones is returned when no configured zone could be created.
var errNoZones = errors.New("no valid zones configured")

// Supervisor owns every component of the process.
type Supervisor struct {
	// cfg is the validated configuration.
	cfg *config.Config
	// loop runs every zone callback.
	loop *loop.Loop
	// registry holds physical and zone devices.
	registry *registry.Registry
	// bus fans events out to the sinks.
	bus *events.Bus
	// repo stores zone snapshots; persister writes to it in the background.
	repo      state.Repository
	persister *state.Persister
	// journal is nil when disabled.
	journal *journal.Journal
	// workers deliver events to blocking sinks.
	workers []*events.Async
	// health reports supervisor and zone status over gRPC.
	health *health.Server
	// hub streams events to websocket clients.
	hub *httpapi.Hub
	// gatherer exposes the collectors on /metrics.
	gatherer prometheus.Gatherer
	// zones are the running zones in configuration order.
	zones []*zone.Zone
	// closers are released by Close in reverse order.
	closers []io.Closer
	// ready is closed once every zone has started.
	ready chan struct{}
}

// New builds the supervisor from a validated configuration. Invalid zones
// are logged and skipped; New fails only when none is left.
func New(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*Supervisor, error) {
	m := metrics.New(reg)

	s := &Supervisor{
		cfg:      cfg,
		loop:     loop.New(),
		registry: registry.New(m.UpdateRequested),
		health:   health.NewServer(),
		hub:      httpapi.NewHub(),
		gatherer: reg,
		ready:    make(chan struct{}),
	}

	for i := range cfg.Devices {
		device := &cfg.Devices[i]
		if err := s.registry.Add(registry.DeviceConfig{
			ID:      device.ID,
			Title:   device.Title,
			Room:    device.Room,
			Kind:    device.Kind,
			Metrics: device.Metrics,
		}); err != nil {
			return nil, fmt.Errorf("register device: %w", err)
		}
	}

	if err := s.setupStorage(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.bus = events.NewBus(events.LogSink(), m, s.hub)

	s.setupSinks()

	messages, err := zone.NewMessages(cfg.Messages)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	deps := zone.Deps{
		Registry:    s.registry,
		Scheduler:   s.loop,
		Publisher:   zone.Publishers{s.registry, s.persister, m, s.health},
		Emitter:     s.bus,
		Notifier:    events.LogNotifier{},
		Coordinator: coordinator.New(),
		Recorder:    m,
		Messages:    messages,
	}

	s.setupZones(context.WithoutCancel(ctx), deps)

	if len(s.zones) == 0 {
		s.Close()
		return nil, errNoZones
	}

	return s, nil
}

func (s *Supervisor) setupStorage(ctx context.Context) error {
	switch s.cfg.State.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     s.cfg.State.Redis.Addr,
			Password: s.cfg.State.Redis.Password,
			DB:       s.cfg.State.Redis.DB,
		})
		s.closers = append(s.closers, client)
		s.repo = state.NewRedisRepository(client, s.cfg.State.Redis.KeyPrefix)
	default:
		s.repo = state.NewFileRepository(s.cfg.State.File)
	}

	s.persister = state.NewPersister(s.repo)

	if s.cfg.Journal.Path == "" {
		return nil
	}

	j, err := journal.Open(ctx, s.cfg.Journal.Path)
	if err != nil {
		return err
	}

	s.journal = j
	s.closers = append(s.closers, j)

	return nil
}

func (s *Supervisor) setupSinks() {
	if s.journal != nil {
		s.addWorker(events.NewAsync("journal", s.journal, events.DefaultBuffer))
	}

	if len(s.cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(s.cfg.Kafka.Brokers, s.cfg.Kafka.Topic)
		s.closers = append(s.closers, producer)
		s.addWorker(events.NewAsync("kafka", producer, events.DefaultBuffer))
	}
}

func (s *Supervisor) addWorker(worker *events.Async) {
	s.workers = append(s.workers, worker)
	s.bus.Add(worker)
}

func (s *Supervisor) setupZones(ctx context.Context, deps zone.Deps) {
	for i := range s.cfg.Zones {
		settings := s.cfg.Zones[i].Settings()

		z, err := zone.New(ctx, settings, deps)
		if err != nil {
			logger.ErrorKV(ctx, "Skipping invalid zone", "zone_id", settings.ID, "error", err)
			continue
		}

		if err = s.registry.AddVirtual(&settings, s.levelHandler(z)); err != nil {
			logger.ErrorKV(ctx, "Skipping zone", "zone_id", settings.ID, "error", err)
			continue
		}

		s.zones = append(s.zones, z)
	}
}

// levelHandler turns a level write on the zone device into a zone command.
func (s *Supervisor) levelHandler(z *zone.Zone) registry.LevelHandler {
	return func(ctx context.Context, level string) error {
		var accepted bool

		if err := s.loop.Do(ctx, func() { accepted = z.SetLevel(level) }); err != nil {
			return fmt.Errorf("set level of %s: %w", z.ID(), err)
		}

		if !accepted {
			return fmt.Errorf("level %q: %w", level, domain.ErrInvalidValue)
		}

		return nil
	}
}

// Ready is closed once every zone has started.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

// Registry returns the device registry.
func (s *Supervisor) Registry() *registry.Registry {
	return s.registry
}

// Handler returns the HTTP API handler.
func (s *Supervisor) Handler() *httpapi.API {
	opts := httpapi.Options{
		Zones:    s,
		Devices:  s.registry,
		Hub:      s.hub,
		Gatherer: s.gatherer,
	}

	if s.journal != nil {
		opts.Journal = s.journal
	}

	return httpapi.New(opts)
}

// Zones returns the status of every zone, read on the event loop.
func (s *Supervisor) Zones(ctx context.Context) ([]httpapi.ZoneStatus, error) {
	result := make([]httpapi.ZoneStatus, 0, len(s.zones))

	err := s.loop.Do(ctx, func() {
		for _, z := range s.zones {
			settings := z.Settings()
			result = append(result, httpapi.NewZoneStatus(&settings, z.Snapshot()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read zones: %w", err)
	}

	return result, nil
}

// Run starts the zones and servers and blocks until ctx is canceled or a
// server fails. Zones are stopped and pending state is flushed before it returns.
//
//nolint:funlen // Startup and teardown order is easier to follow in one place.
func (s *Supervisor) Run(ctx context.Context) error {
	// Core components outlive ctx so that zones can be stopped cleanly.
	coreCtx, stopCore := context.WithCancel(context.WithoutCancel(ctx))

	var core sync.WaitGroup

	core.Go(func() { _ = s.loop.Run(coreCtx) })
	core.Go(func() { s.persister.Run(coreCtx) })

	for _, worker := range s.workers {
		core.Go(func() { worker.Run(coreCtx) })
	}

	defer func() {
		stopCore()
		core.Wait()
	}()

	if s.cfg.InitDelay > 0 {
		logger.InfoKV(ctx, "Waiting before starting zones", "init_delay", s.cfg.InitDelay.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.InitDelay):
		}
	}

	if err := s.startZones(ctx); err != nil {
		return err
	}

	defer s.stopZones(ctx)

	s.health.SetServing(true)
	close(s.ready)

	logger.InfoKV(ctx, "Supervisor started", "zones", len(s.zones))

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var servers sync.WaitGroup

	errCh := make(chan error, 2)

	servers.Go(func() {
		server := httpapi.NewServer(s.cfg.HTTPAddr, s.Handler().Handler())
		if err := httpapi.RunServer(serveCtx, server, s.cfg.Timeout); err != nil {
			errCh <- err
		}
	})

	servers.Go(func() {
		if err := s.health.Run(serveCtx, s.cfg.GRPCAddr); err != nil {
			errCh <- err
		}
	})

	var runErr error

	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	s.health.SetServing(false)
	cancel()
	s.hub.Close()
	servers.Wait()

	logger.Info(ctx, "Supervisor stopped")

	return runErr
}

// startZones restores every zone from the repository and starts it on the loop.
func (s *Supervisor) startZones(ctx context.Context) error {
	for _, z := range s.zones {
		restored, err := s.repo.Load(ctx, z.ID())

		switch {
		case err == nil:
		case errors.Is(err, state.ErrNotFound):
			restored = nil
		default:
			logger.WarnKV(ctx, "Failed to restore zone state, starting disarmed", "zone_id", z.ID(), "error", err)

			restored = nil
		}

		if err = s.loop.Do(ctx, func() { z.Start(restored) }); err != nil {
			return fmt.Errorf("start zone %s: %w", z.ID(), err)
		}
	}

	return nil
}

func (s *Supervisor) stopZones(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	err := s.loop.Do(stopCtx, func() {
		for _, z := range s.zones {
			z.Stop()
		}
	})
	if err != nil {
		logger.WarnKV(ctx, "Failed to stop zones", "error", err)
	}
}

// Close releases storage and sink connections.
func (s *Supervisor) Close() {
	for _, closer := range slices.Backward(s.closers) {
		if err := closer.Close(); err != nil {
			logger.WarnKV(context.Background(), "Failed to close resource", "error", err)
		}
	}

	s.closers = nil
}
