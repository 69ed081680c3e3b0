package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/config"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/tracing"
)

// NewAskCmd constructs the `ragbot ask` command, which answers a single
// question from the indexed documents and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documents",
		Long: `Retrieve the chunks most similar to the question and ask the language
model to answer from them.

Examples:
  ragbot ask "when do rockets launch?"
  ragbot ask --top-k 5 "summarise the refund policy"
  ragbot ask --json "who wrote the handbook?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			flush := tracing.Enable(log)
			defer flush()

			st, err := openStack(ctx, log, settings)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = st.Close() }()

			gen, _, err := newGenerator(ctx, log, settings)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			answerer, err := st.answerer(gen)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			ans, err := answerer.Answer(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ans)
			}
			fmt.Fprintln(out, strings.TrimSpace(ans.Text))
			if len(ans.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for _, s := range ans.Sources {
					fmt.Fprintf(out, "  %s (score %.3f)\n", s.ID, s.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default: RAG_TOP_K or 3)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer and sources as JSON")

	return cmd
}
