package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/toonify-go/internal/version"
)

// NewVersionCmd constructs the `toonify version` command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the toonify version, git commit and build date",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
