package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/config"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/qa"
	"github.com/54b3r/ragbot-go/internal/server"
	"github.com/54b3r/ragbot-go/internal/tracing"
)

// NewServeCmd constructs the `ragbot serve` command, which starts the HTTP
// API in front of the ingestion and answering pipelines.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragbot HTTP server",
		Long: `Start the ragbot HTTP server.

Endpoints:
  POST /api/upload   multipart .txt upload (field "file", optional "document_id")
  POST /api/ask      {"question": "...", "top_k": 3}
  POST /api/analyze  {"text": "..."}
  GET  /api/health   liveness
  GET  /api/ready    dependency readiness
  GET  /metrics      Prometheus metrics

Examples:
  ragbot serve
  ragbot serve --port 9090
  VECTOR_STORE=qdrant QDRANT_HOST=localhost ragbot serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if host == "" {
				host = settings.Host
			}
			if port == 0 {
				port = settings.Port
			}

			flush := tracing.Enable(log)
			defer flush()

			st, err := openStack(ctx, log, settings)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = st.Close() }()

			ing, err := st.ingester()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			gen, modelPinger, err := newGenerator(ctx, log, settings)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			ans, err := st.answerer(gen)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			an, err := qa.NewAnalyzer(gen)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := st.pingers
			if modelPinger != nil {
				pingers = append(pingers, modelPinger)
			}

			srv, err := server.New(server.Services{
				Ingester: ing,
				Answerer: ans,
				Analyzer: an,
			}, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting",
				slog.String("vector_store", settings.VectorStore),
				slog.Int("pingers", len(pingers)),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: RAGBOT_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: RAGBOT_PORT or 8080)")

	return cmd
}
