package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/config"
	"github.com/54b3r/ragbot-go/internal/ingestion"
	"github.com/54b3r/ragbot-go/internal/logging"
)

// NewIngestCmd constructs the `ragbot ingest` command, which chunks, embeds,
// and indexes one or more plain-text documents.
func NewIngestCmd() *cobra.Command {
	var files []string
	var urls []string
	var docID string

	cmd := &cobra.Command{
		Use:   "ingest [file|url]...",
		Short: "Index plain-text documents into the vector store",
		Long: `Split documents into overlapping chunks, embed them, and store them in
the configured vector index.

Sources may be given as arguments or with --file / --url. A file named "-"
reads from stdin. With no sources at all, stdin is read.

Chunk IDs are "<document-id>/chunk_<n>". The document ID defaults to a hash
of the content, so re-ingesting the same text replaces its chunks. Use --id
to choose the ID yourself (only with a single source).

Relevant environment variables:
  VECTOR_STORE         qdrant, sqlite, or memory
  CHUNK_SIZE           chunk size in characters (default: 1000)
  CHUNK_OVERLAP        overlap in characters (default: 100)
  INGEST_CONCURRENCY   parallel embed+upsert calls (default: 1)

Examples:
  ragbot ingest notes.txt
  ragbot ingest --id handbook --file ./handbook.txt
  ragbot ingest --url https://example.com/faq.txt
  cat notes.txt | ragbot ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			for _, a := range args {
				if isURL(a) {
					urls = append(urls, a)
				} else {
					files = append(files, a)
				}
			}
			if len(files) == 0 && len(urls) == 0 {
				files = []string{"-"}
			}
			if docID != "" && len(files)+len(urls) > 1 {
				return fmt.Errorf("ingest: --id can only be used with a single source")
			}

			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if settings.VectorStore == config.StoreMemory {
				log.Warn("ingest: VECTOR_STORE=memory discards documents when this command exits")
			}

			st, err := openStack(ctx, log, settings)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = st.Close() }()

			pipeline, err := st.ingester()
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			out := cmd.OutOrStdout()
			var failed []error
			report := func(source string, res *ingestion.Result, err error) {
				if err != nil {
					var ie *ingestion.IngestError
					if errors.As(err, &ie) {
						log.Error("ingest: partial failure",
							slog.String("source", source),
							slog.Int("stored", ie.Stored),
							slog.Int("total", ie.Total),
						)
					}
					failed = append(failed, fmt.Errorf("%s: %w", source, err))
					return
				}
				fmt.Fprintf(out, "%s: stored %d chunks as %s\n", source, res.ChunkCount, res.DocumentID)
			}

			for _, path := range files {
				text, err := readText(path, cmd.InOrStdin())
				if err != nil {
					failed = append(failed, err)
					continue
				}
				res, err := pipeline.Ingest(ctx, ingestion.Document{Text: text, ID: docID, Source: sourceName(path)})
				report(sourceName(path), res, err)
			}
			for _, u := range urls {
				res, err := pipeline.IngestURL(ctx, u, docID)
				report(u, res, err)
			}

			if len(failed) > 0 {
				return fmt.Errorf("ingest: %d of %d sources failed: %w", len(failed), len(files)+len(urls), errors.Join(failed...))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Plain-text file to ingest (repeatable, - for stdin)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Plain-text URL to fetch and ingest (repeatable)")
	cmd.Flags().StringVar(&docID, "id", "", "Document ID used to namespace chunk IDs")

	return cmd
}
