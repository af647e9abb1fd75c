package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/security-zone/internal/config"
	"github.com/oshokin/security-zone/internal/service/supervisor"
	"github.com/oshokin/security-zone/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// httpAddress overrides the HTTP listen address.
	httpAddress string
	// stateFile overrides the state file of the file backend.
	stateFile string

	// rootCmd runs the supervisor when no subcommand is given.
	rootCmd = &cobra.Command{
		Use:   "security-zone [grpc-listen-address]",
		Short: "Supervise security zones and raise alarms.",
		Long: `Runs the security zone supervisor.

Each configured zone watches a set of device rules and walks through
arming delays, alarm delays, alarms and post-alarm timeouts. Zone state is
persisted (file or Redis) and restored after a restart, so pending delays
continue from their original deadlines.

Lifecycle events are logged, stored in the SQLite journal, published to
Kafka and streamed over websocket when configured. Zone status is served over
HTTP and the standard gRPC health protocol.

The gRPC listen address can be provided as argument to override config.
Settings can be overridden with SECURITY_ZONE_* environment variables.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var grpcAddress string
			if len(args) > 0 {
				grpcAddress = args[0]
			}

			options := &supervisor.Options{
				ConfigPath:  configPath,
				HTTPAddress: httpAddress,
				GRPCAddress: grpcAddress,
				StateFile:   stateFile,
			}

			return supervisor.Run(ctx, options)
		},
	}
)

// Execute runs the security-zone CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(checkCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&httpAddress, "http", "", "HTTP listen address (overrides config)")
	rootCmd.Flags().StringVarP(&stateFile, "state-file", "s", "", "path to persist zone state (overrides config)")
}
