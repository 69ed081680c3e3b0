package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/rag"
)

// Request is a single-turn completion request.
type Request struct {
	// System is an optional system prompt.
	System string

	// Prompt is the user message.
	Prompt string

	// Temperature overrides the backend default when non-nil.
	Temperature *float32

	// MaxTokens overrides the backend default when positive.
	MaxTokens int
}

// GeneratorConfig tunes a Generator.
type GeneratorConfig struct {
	// Timeout bounds each Complete call (default: 30s).
	Timeout time.Duration

	// OmitTemperature drops per-request temperature overrides, for models
	// that reject the parameter. See Config.SupportsTemperature.
	OmitTemperature bool

	// Model names the backing model in log records.
	Model string
}

// Generator runs single-turn completions against a chat model with a
// per-call timeout and classifies every failure as rag.ErrGenerationFailure.
// It is safe for concurrent use when the underlying model is.
type Generator struct {
	model model.BaseChatModel
	cfg   GeneratorConfig
}

// NewGenerator wraps m. A nil cfg selects the defaults.
func NewGenerator(m model.BaseChatModel, cfg *GeneratorConfig) (*Generator, error) {
	if m == nil {
		return nil, fmt.Errorf("provider: chat model must not be nil")
	}
	var c GeneratorConfig
	if cfg != nil {
		c = *cfg
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return &Generator{model: m, cfg: c}, nil
}

// Complete sends req to the model and returns the raw response text. An
// empty response is treated as a failure.
func (g *Generator) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", rag.Errorf(rag.ErrEmptyInput, "generate", "prompt is blank")
	}

	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))

	var opts []model.Option
	if req.Temperature != nil && !g.cfg.OmitTemperature {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	log := logging.FromContext(ctx)
	start := time.Now()
	resp, err := g.model.Generate(callCtx, msgs, opts...)
	if err != nil {
		log.Error("provider: generation failed",
			slog.String("model", g.cfg.Model),
			slog.Int("prompt_chars", len(req.Prompt)),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", logging.Excerpt(err.Error(), logging.ExcerptRunes)),
		)
		return "", rag.Wrap(rag.ErrGenerationFailure, "generate", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		log.Error("provider: model returned an empty response",
			slog.String("model", g.cfg.Model),
			slog.Duration("elapsed", time.Since(start)),
		)
		return "", rag.Errorf(rag.ErrGenerationFailure, "generate", "model returned an empty response")
	}

	log.Debug("provider: generation complete",
		slog.String("model", g.cfg.Model),
		slog.Int("prompt_chars", len(req.Prompt)),
		slog.Int("response_chars", len(resp.Content)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp.Content, nil
}
