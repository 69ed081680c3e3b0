package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/version"
)

// NewVersionCmd constructs the `ragbot version` subcommand.
// It prints the binary version, git commit, and build date injected at
// build time via -ldflags.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ragbot version, git commit, and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragbot %s\n", version.String())
		},
	}
}
