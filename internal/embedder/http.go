package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/54b3r/ragbot-go/internal/logging"
)

// defaultHTTPTimeout is the transport-level ceiling for the HTTP backends.
// Guarded applies the per-call timeout on top of it.
const defaultHTTPTimeout = 60 * time.Second

// maxResponseBytes caps an embeddings response body.
const maxResponseBytes = 64 << 20

// apiError is the error envelope shared by the HTTP backends. Ollama sends
// {"error": "..."} and OpenAI sends {"error": {"message": "..."}}.
type apiError struct {
	Error json.RawMessage `json:"error"`
}

// message extracts a human-readable error from raw, or "" if none is set.
func (e apiError) message() string {
	if len(e.Error) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(e.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &obj) == nil {
		return obj.Message
	}
	return ""
}

// postJSON sends body to url and decodes a 2xx response into out. Non-2xx
// responses become errors carrying the service's own message when present,
// otherwise a bounded excerpt of the body.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil {
			if msg := ae.message(); msg != "" {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
			}
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, logging.Excerpt(string(raw), logging.ExcerptRunes))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
