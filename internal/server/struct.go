package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragbot-go/internal/ingestion"
	"github.com/54b3r/ragbot-go/internal/qa"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full ingestion or generation call.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on POST
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MaxUploadBytes caps POST /api/upload bodies. Defaults to 10 MiB.
	MaxUploadBytes int64
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Ingester indexes one document. *ingestion.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, doc ingestion.Document) (*ingestion.Result, error)
}

// Answerer answers a question from indexed documents. *qa.Answerer satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string, topK int) (*qa.Answer, error)
}

// Analyzer produces a structured analysis of text. *qa.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*qa.AnalysisResult, error)
}

// Services are the pipeline operations exposed over HTTP.
type Services struct {
	Ingester Ingester
	Answerer Answerer
	Analyzer Analyzer
}

// Server is the HTTP boundary around the ingestion and answering pipelines.
type Server struct {
	// svc holds the pipeline operations the handlers call.
	svc Services
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's sweeper. Safe to call more than once.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the natural language question.
	Question string `json:"question"`
	// TopK is the number of chunks to retrieve. Zero selects the default.
	TopK int `json:"top_k"`
}

// analyzeRequest is the JSON body for POST /api/analyze.
type analyzeRequest struct {
	// Text is the text to analyse.
	Text string `json:"text"`
}

// uploadResponse is the JSON response for POST /api/upload.
type uploadResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	// Error is a human-readable description.
	Error string `json:"error"`
	// Kind classifies the failure (e.g. "invalid_input", "generation_failure").
	Kind string `json:"kind"`
	// Retryable is true when the same request may succeed later.
	Retryable bool `json:"retryable"`
	// ChunksStored is set when an upload failed part-way; those chunks remain indexed.
	ChunksStored *int `json:"chunks_stored,omitempty"`
}
