package version

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand attaches a `version` subcommand to the provided root command.
func AttachCobraVersionCommand(root *cobra.Command) {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long:  "Print version, commit hash, build timestamp, Go version and platform of the binary. Build metadata is injected with ldflags at build time.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !asJSON {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), Full())
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")

			return encoder.Encode(Get())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	root.AddCommand(cmd)
}
