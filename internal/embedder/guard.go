package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/rag"
)

// DefaultTimeout bounds each embedding call when no override is set.
const DefaultTimeout = 30 * time.Second

// Guarded wraps a backend embedder with the checks the pipelines rely on:
// blank input is rejected before any network call, each call is bounded by
// a timeout, the response must hold one non-empty vector per input, and all
// vectors share the dimensionality of the first successful call.
// Every backend failure is reported as rag.ErrEmbeddingFailure.
type Guarded struct {
	inner   rag.Embedder
	backend string
	timeout time.Duration

	// dims is 0 until the first successful call pins it.
	dims atomic.Int64
}

// GuardConfig tunes a Guarded embedder.
type GuardConfig struct {
	// Backend names the wrapped service in log records (e.g. "ollama").
	Backend string

	// Timeout bounds each Embed call (default: 30s).
	Timeout time.Duration

	// Dimensions pins the expected vector size up front when positive.
	Dimensions int
}

// NewGuarded wraps inner. A nil cfg selects the defaults.
func NewGuarded(inner rag.Embedder, cfg *GuardConfig) *Guarded {
	var c GuardConfig
	if cfg != nil {
		c = *cfg
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	g := &Guarded{inner: inner, backend: c.Backend, timeout: c.Timeout}
	if c.Dimensions > 0 {
		g.dims.Store(int64(c.Dimensions))
	}
	return g
}

// Dimensions returns the pinned vector size, or 0 if no call has succeeded
// and none was configured.
func (g *Guarded) Dimensions() int {
	return int(g.dims.Load())
}

// Embed validates texts, calls the wrapped embedder and checks its result.
func (g *Guarded) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, rag.Errorf(rag.ErrEmptyInput, "embed", "no texts supplied")
	}
	totalChars := 0
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, rag.Errorf(rag.ErrEmptyInput, "embed", "text %d is blank", i)
		}
		totalChars += len(t)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	vectors, err := g.inner.Embed(callCtx, texts)
	if err == nil {
		err = g.check(texts, vectors)
	}
	if err != nil {
		logging.FromContext(ctx).Error("embedder: embedding failed",
			slog.String("backend", g.backend),
			slog.Int("inputs", len(texts)),
			slog.Int("input_chars", totalChars),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", logging.Excerpt(err.Error(), logging.ExcerptRunes)),
		)
		return nil, rag.Wrap(rag.ErrEmbeddingFailure, "embed", err)
	}
	return vectors, nil
}

func (g *Guarded) check(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	want := int(g.dims.Load())
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("vector %d is empty", i)
		}
		if want == 0 {
			want = len(v)
		}
		if len(v) != want {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), want)
		}
	}
	if !g.dims.CompareAndSwap(0, int64(want)) {
		if pinned := int(g.dims.Load()); pinned != want {
			return fmt.Errorf("vectors have dimension %d, want %d", want, pinned)
		}
	}
	return nil
}
