package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/security-zone/internal/service/checker"
)

var (
	// once checks a single time instead of polling.
	once bool
	// zones limits the check to these zone ids.
	zones []string
	// onAlarm is the hook command run when a zone starts alarming.
	onAlarm string

	// checkCmd polls the health service of a running supervisor.
	checkCmd = &cobra.Command{
		Use:   "check [server-address]",
		Short: "Check zone status of a running supervisor.",
		Long: `Queries the gRPC health service of a running supervisor.

With --once the command checks every zone a single time and exits with a
non-zero status when any zone is alarming, which suits scripts and container
health checks. Otherwise it polls every 5 seconds and runs the --on-alarm
command whenever a zone starts alarming; the zone id is passed in the
SECURITY_ZONE_ALARM_ZONE environment variable.

Server address can be provided as argument or derived from configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			checkerOptions := &checker.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Zones:         zones,
				Once:          once,
				OnAlarm:       onAlarm,
			}

			return checker.Run(ctx, checkerOptions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checkCmd.Flags().BoolVar(&once, "once", false, "check a single time and fail when a zone is alarming")
	checkCmd.Flags().StringSliceVarP(&zones, "zone", "z", nil, "zone ids to check (default: all configured zones)")
	checkCmd.Flags().StringVar(&onAlarm, "on-alarm", "", "shell command run when a zone starts alarming")
}
