package ingestion

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/ragbot-go/internal/rag"
)

// fetcher retrieves plain-text documents over HTTP for IngestURL.
type fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func newFetcher(timeout time.Duration, userAgent string, maxBytes int64) *fetcher {
	return &fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// fetch retrieves the body of url. Only text/plain responses are accepted,
// matching the file types accepted by upload.
func (f *fetcher) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", rag.Wrap(rag.ErrInvalidInput, "fetch", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "text/plain" {
			return "", rag.Errorf(rag.ErrInvalidInput, "fetch", "unsupported content type %q, only text/plain is accepted", ct)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", rag.Errorf(rag.ErrInvalidInput, "fetch", "document exceeds %d bytes", f.maxBytes)
	}
	if !utf8.Valid(body) {
		return "", rag.Errorf(rag.ErrInvalidInput, "fetch", "document is not valid UTF-8")
	}
	return string(body), nil
}

// IngestURL fetches a plain-text document and ingests it. The URL becomes
// the document source and, when id is empty, the content hash is used as
// the document ID.
func (p *Pipeline) IngestURL(ctx context.Context, url, id string) (*Result, error) {
	if strings.TrimSpace(url) == "" {
		return nil, rag.Errorf(rag.ErrEmptyInput, "ingest url", "url is blank")
	}
	text, err := p.fetcher.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ingestion: fetch failed for %s: %w", url, err)
	}
	return p.Ingest(ctx, Document{Text: Sanitize(text), ID: id, Source: url})
}
