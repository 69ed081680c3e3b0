package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/ragbot-go/internal/ingestion"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/rag"
	"github.com/54b3r/ragbot-go/internal/version"
)

// maxJSONBody caps the request body of the JSON endpoints.
const maxJSONBody = 1 << 20

// maxTopK is the largest top_k accepted by POST /api/ask.
const maxTopK = 50

// retryAfterSeconds is sent with every retryable error response.
const retryAfterSeconds = "5"

// handleUpload handles POST /api/upload. The multipart field "file" must be
// a non-empty UTF-8 .txt file; the optional field "document_id" namespaces
// the chunk IDs.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, "upload", start, rag.Errorf(rag.ErrInvalidInput, "upload",
				"file exceeds the %d byte limit", s.cfg.MaxUploadBytes))
			return
		}
		s.fail(w, r, "upload", start, rag.Errorf(rag.ErrInvalidInput, "upload", "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if header.Filename == "" || name == "." || name == "/" {
		s.fail(w, r, "upload", start, rag.Errorf(rag.ErrInvalidInput, "upload", "a valid filename is required"))
		return
	}
	if !strings.EqualFold(filepath.Ext(name), ".txt") {
		s.fail(w, r, "upload", start, rag.Errorf(rag.ErrInvalidInput, "upload", "only .txt files are allowed"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, "upload", start, rag.Wrap(rag.ErrInvalidInput, "upload: read file", err))
		return
	}
	if len(data) == 0 {
		s.fail(w, r, "upload", start, rag.Errorf(rag.ErrEmptyInput, "upload", "file is empty"))
		return
	}
	if !utf8.Valid(data) {
		s.fail(w, r, "upload", start, rag.Errorf(rag.ErrInvalidInput, "upload", "file must be UTF-8 encoded text"))
		return
	}

	text := ingestion.Sanitize(string(data))
	res, err := s.svc.Ingester.Ingest(r.Context(), ingestion.Document{
		Text:   text,
		ID:     strings.TrimSpace(r.FormValue("document_id")),
		Source: name,
	})
	if err != nil {
		var ie *ingestion.IngestError
		if errors.As(err, &ie) {
			s.metrics.chunksIngestedTotal.Add(float64(ie.Stored))
		}
		s.fail(w, r, "upload", start, err)
		return
	}

	s.metrics.chunksIngestedTotal.Add(float64(res.ChunkCount))
	s.metrics.observeOperation("upload", outcomeOK, time.Since(start))
	log.Info("upload: document stored",
		slog.String("file", name),
		slog.String("document_id", res.DocumentID),
		slog.Int("chunks", res.ChunkCount),
		slog.Int("words", len(strings.Fields(text))),
	)
	writeJSON(w, http.StatusOK, uploadResponse{
		Message:    fmt.Sprintf("stored %s as %d chunks", name, res.ChunkCount),
		DocumentID: res.DocumentID,
		ChunkCount: res.ChunkCount,
	})
}

// handleAsk handles POST /api/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "ask", start, err)
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		s.fail(w, r, "ask", start, rag.Errorf(rag.ErrInvalidInput, "ask", "top_k must be between 0 and %d (0 selects the default)", maxTopK))
		return
	}

	ans, err := s.svc.Answerer.Answer(r.Context(), req.Question, req.TopK)
	if err != nil {
		s.fail(w, r, "ask", start, err)
		return
	}

	s.metrics.observeOperation("ask", outcomeOK, time.Since(start))
	writeJSON(w, http.StatusOK, ans)
}

// handleAnalyze handles POST /api/analyze.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "analyze", start, err)
		return
	}

	res, err := s.svc.Analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, "analyze", start, err)
		return
	}

	s.metrics.observeOperation("analyze", outcomeOK, time.Since(start))
	writeJSON(w, http.StatusOK, res)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "ragbot",
		"version": version.String(),
	})
}

// decodeJSON decodes a bounded JSON request body into v. Failures are
// classified as rag.ErrInvalidInput.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return rag.Wrap(rag.ErrInvalidInput, "decode request body", err)
	}
	return nil
}

// fail logs err once, records the operation outcome and writes the mapped
// error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, operation string, start time.Time, err error) {
	status, outcome := classify(err)
	s.metrics.observeOperation(operation, outcome, time.Since(start))

	log := logging.FromContext(r.Context())
	attrs := []any{
		slog.String("operation", operation),
		slog.Int("status", status),
		slog.String("kind", kindName(err)),
		slog.String("error", logging.Excerpt(err.Error(), logging.ExcerptRunes)),
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	resp := errorResponse{
		Error:     err.Error(),
		Kind:      kindName(err),
		Retryable: rag.Retryable(err),
	}
	var ie *ingestion.IngestError
	if errors.As(err, &ie) {
		stored := ie.Stored
		resp.ChunksStored = &stored
	}
	if resp.Retryable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, status, resp)
}

// statusClientClosedRequest is reported when the client went away before
// the response was ready. The client never sees it; it only labels logs
// and metrics.
const statusClientClosedRequest = 499

// classify maps an error to its HTTP status and metrics outcome.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, outcomeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, outcomeTimeout
	case errors.Is(err, rag.ErrEmptyInput), errors.Is(err, rag.ErrInvalidInput):
		return http.StatusBadRequest, outcomeBadInput
	case errors.Is(err, rag.ErrMalformedOutput), errors.Is(err, rag.ErrSchemaViolation):
		return http.StatusBadGateway, outcomeUpstreamError
	case errors.Is(err, rag.ErrEmbeddingFailure),
		errors.Is(err, rag.ErrIndexFailure),
		errors.Is(err, rag.ErrRetrievalFailure),
		errors.Is(err, rag.ErrGenerationFailure):
		return http.StatusServiceUnavailable, outcomeUpstreamError
	default:
		return http.StatusInternalServerError, outcomeError
	}
}

// kindName returns the wire name of err's kind.
func kindName(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	kind := rag.KindOf(err)
	if kind == nil {
		return "internal"
	}
	return strings.ReplaceAll(kind.Error(), " ", "_")
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
