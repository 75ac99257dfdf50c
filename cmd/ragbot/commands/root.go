// Package commands defines all Cobra CLI commands for the ragbot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/ragbot/ragbot-go/internal/audit"
	"github.com/ragbot/ragbot-go/internal/config"
	"github.com/ragbot/ragbot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragbot",
		Short: "ragbot — chat with your PDF documents, grounded by retrieval",
		Long: `ragbot is a local-first chatbot for your documents.

Index PDFs into a local vector store, then ask questions answered by a hosted
LLM using only the most relevant passages from your documents. Conversation
memory is bounded, so long sessions stay within the model's context window.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.ragbot/config.yaml).
See 'ragbot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragbot/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
