package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/config"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/qa"
	"github.com/54b3r/ragbot-go/internal/tracing"
)

// NewAnalyzeCmd constructs the `ragbot analyze` command, which asks the
// model for a structured summary, entity list, and sentiment of a text.
func NewAnalyzeCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Summarise a text and extract entities and sentiment as JSON",
		Long: `Ask the language model for a structured analysis of a text: a 3-5 item
summary, three key entities with their roles, and the overall sentiment.
The text must be 100-10000 characters and at least 50 words.

Examples:
  ragbot analyze --file article.txt
  cat article.txt | ragbot analyze`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			var text string
			switch {
			case len(args) > 0:
				text = strings.Join(args, " ")
			default:
				if file == "" {
					file = "-"
				}
				t, err := readText(file, cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("analyze: %w", err)
				}
				text = t
			}
			// Reject bad input before any provider is constructed.
			if err := qa.CheckAnalysisInput(text); err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			flush := tracing.Enable(log)
			defer flush()

			gen, _, err := newGenerator(ctx, log, settings)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			analyzer, err := qa.NewAnalyzer(gen)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			res, err := analyzer.Analyze(ctx, text)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File to analyse (default: stdin)")

	return cmd
}
