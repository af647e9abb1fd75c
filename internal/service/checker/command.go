package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/security-zone/internal/config"
	"github.com/oshokin/security-zone/internal/logger"
	"github.com/oshokin/security-zone/internal/service/common"
)

// Options controls the checker polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// Zones limits the check to these zone ids; all configured zones by default.
	Zones []string
	// PollInterval defines the interval between checks.
	PollInterval time.Duration
	// Once checks a single time and fails when a zone is alarming.
	Once bool
	// OnAlarm is a shell command run when a zone starts alarming.
	OnAlarm string
}

// DefaultPollInterval defines the polling interval for zone checks.
const DefaultPollInterval = 5 * time.Second

// ErrAlarming is returned by a single check when at least one zone is alarming.
var ErrAlarming = errors.New("zone is alarming")

// statusChecker is the part of the health client the checker uses.
type statusChecker interface {
	Supervisor(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error)
	Zone(ctx context.Context, zoneID string) (healthpb.HealthCheckResponse_ServingStatus, error)
}

// Run polls zone health and runs the alarm hook when a zone starts alarming.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err = logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "checker")

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	zones := opts.Zones
	if len(zones) == 0 {
		for i := range cfg.Zones {
			zones = append(zones, cfg.Zones[i].ID)
		}
	}

	// Command line argument overrides config.
	serverAddress := opts.ServerAddress
	if serverAddress == "" {
		serverAddress = dialAddress(cfg.GRPCAddr)
	}

	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout), common.WithActor(actor))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = client.Close()
	}()

	p := &poller{client: client, zones: zones, hook: opts.OnAlarm, alarming: make(map[string]bool)}

	if opts.Once {
		return p.check(ctx)
	}

	logger.InfoKV(ctx, "Polling zone health",
		"server_address", serverAddress,
		"interval", opts.PollInterval.String(),
		"zones", zones,
	)

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
			if err = p.check(ctx); err != nil && !errors.Is(err, ErrAlarming) {
				logger.ErrorKV(ctx, "Check failed", "error", err)
			}
		}
	}
}

// poller remembers which zones were alarming at the previous check.
type poller struct {
	client   statusChecker
	zones    []string
	hook     string
	alarming map[string]bool
}

// check queries every zone once. It returns ErrAlarming when a zone is alarming.
func (p *poller) check(ctx context.Context) error {
	status, err := p.client.Supervisor(ctx)
	if err != nil {
		return err
	}

	if status != healthpb.HealthCheckResponse_SERVING {
		logger.WarnKV(ctx, "Supervisor is not serving", "status", status.String())
	}

	var alarming []string

	for _, zoneID := range p.zones {
		status, err = p.client.Zone(ctx, zoneID)
		if err != nil {
			logger.WarnKV(ctx, "Zone check failed", "zone_id", zoneID, "error", err)
			continue
		}

		isAlarming := status == healthpb.HealthCheckResponse_NOT_SERVING
		if !isAlarming {
			if p.alarming[zoneID] {
				logger.InfoKV(ctx, "Zone is quiet again", "zone_id", zoneID)
			}

			p.alarming[zoneID] = false

			continue
		}

		alarming = append(alarming, zoneID)

		if p.alarming[zoneID] {
			continue
		}

		p.alarming[zoneID] = true

		logger.WarnKV(ctx, "Zone is alarming", "zone_id", zoneID)

		if p.hook != "" {
			if err = RunHook(ctx, p.hook, zoneID); err != nil {
				logger.ErrorKV(ctx, "Alarm hook failed", "zone_id", zoneID, "error", err)
			}
		}
	}

	if len(alarming) > 0 {
		return fmt.Errorf("%v: %w", alarming, ErrAlarming)
	}

	return nil
}

// dialAddress turns a listen address such as ":50051" into a dialable one.
func dialAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return net.JoinHostPort(host, port)
}
