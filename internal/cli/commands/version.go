package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/condpredict/internal/engine"
	"github.com/leapstack-labs/condpredict/internal/model"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Print the condpredict release, the build it came from and the tool
version recorded in run metadata.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "condpredict v%s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
			_, _ = fmt.Fprintf(w, "%s tool v%s, default model %s\n", engine.ToolName, engine.ToolVersion, model.DefaultName)
		},
	}
}
