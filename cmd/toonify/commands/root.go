// Package commands defines the Cobra commands for the toonify binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/toonify-go/internal/audit"
	"github.com/54b3r/toonify-go/internal/config"
	"github.com/54b3r/toonify-go/internal/logging"
)

// NewRootCmd constructs the root command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	var configPath, envFile string

	root := &cobra.Command{
		Use:   "toonify",
		Short: "Recommend songs that match the mood of a picture",
		Long: `toonify describes an image with a vision model, turns the description into
musical features and looks up the nearest songs in a vector index.

Settings come from environment variables, an optional .env file and an
optional YAML file (~/.toonify/config.yaml). Environment variables win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			dotenv, err := config.LoadDotEnv(envFile, log)
			if err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// Rebuilt so LOG_LEVEL and LOG_FORMAT from the files take effect.
			log = logging.New()
			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), audit.Sources{
				ConfigFile: path,
				DotEnvFile: dotenv,
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.toonify/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; missing files are ignored")

	root.AddCommand(
		NewPlaylistCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)
	return root
}
