package supervisor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/oshokin/security-zone/internal/config"
	"github.com/oshokin/security-zone/internal/logger"
)

// Options controls the supervisor process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// HTTPAddress overrides the HTTP listen address of the configuration.
	HTTPAddress string
	// GRPCAddress overrides the gRPC listen address of the configuration.
	GRPCAddress string
	// StateFile overrides the state file of the file backend.
	StateFile string
}

// Run loads the configuration and runs the supervisor until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "supervisor")

	// Command line arguments override the configuration.
	if opts.HTTPAddress != "" {
		cfg.HTTPAddr = opts.HTTPAddress
	}

	if opts.GRPCAddress != "" {
		cfg.GRPCAddr = opts.GRPCAddress
	}

	if opts.StateFile != "" {
		cfg.State.File = opts.StateFile
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s, err := New(ctx, cfg, reg)
	if err != nil {
		return fmt.Errorf("initialise supervisor: %w", err)
	}

	defer s.Close()

	return s.Run(ctx)
}
