package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/condpredict/internal/cli/config"
	"github.com/leapstack-labs/condpredict/internal/cli/output"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the configuration after merging defaults, condpredict.yaml,
CONDPREDICT_* environment variables and command-line flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			r := output.FromContext(ctx)

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			if file := config.GetConfigFileUsed(); file != "" {
				r.Muted("# " + file)
			}
			_, err = r.Writer().Write(data)
			return err
		},
	}
}
