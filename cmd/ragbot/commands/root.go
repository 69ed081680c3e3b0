// Package commands defines all Cobra CLI commands for the ragbot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/audit"
	"github.com/54b3r/ragbot-go/internal/config"
	"github.com/54b3r/ragbot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragbot",
		Short: "ragbot answers questions from your own documents",
		Long: `ragbot is a small retrieval-augmented QA service.

Documents are split into overlapping chunks, embedded, and stored in a
vector index (Qdrant, SQLite, or in-memory). Questions are answered by a
language model using the most similar chunks as context.

The model provider is selected via MODEL_PROVIDER, the embedding backend via
EMBEDDING_PROVIDER, and the index via VECTOR_STORE. Values are read from the
environment, then ./.env, then a YAML config file (~/.ragbot/config.yaml).
See 'ragbot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// .env first so it outranks YAML; real env vars outrank both.
			dotenv, err := config.LoadDotEnv(log)
			if err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), audit.Sources{
				ConfigFile: path,
				DotEnv:     dotenv,
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragbot/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewAnalyzeCmd(),
		NewVersionCmd(),
	)

	return root
}
