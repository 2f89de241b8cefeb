// Package commands defines all Cobra CLI commands for the mealy binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mealy/mealy-go/internal/audit"
	"github.com/mealy/mealy-go/internal/config"
	"github.com/mealy/mealy-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mealy",
		Short: "Mealy — recipe retrieval and AI generation engine",
		Long: `Mealy retrieves relevant recipes from a large static corpus and uses them
as grounding context for AI recipe generation.

Retrieval is semantic (embedding index with cosine ranking) with lexical
fallbacks when no embedding credential is configured. Model provider is
selected via the MODEL_PROVIDER environment variable or a YAML config file
(~/.mealy/config.yaml).
See 'mealy --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load .env first so its values participate in config resolution.
			// Missing file is the normal case, not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.mealy/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIndexCmd(),
		NewSearchCmd(),
		NewGenerateCmd(),
		NewVersionCmd(),
	)

	return root
}
