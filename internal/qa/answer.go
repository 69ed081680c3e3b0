// Package qa implements the two model-backed operations of the service:
// retrieval-augmented question answering and structured text analysis.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/ragbot-go/internal/budget"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/provider"
	"github.com/54b3r/ragbot-go/internal/rag"
)

// ContextSeparator joins retrieved chunks in the prompt's context block.
const ContextSeparator = "\n---\n\n"

// DefaultTopK is the number of chunks retrieved when a caller passes 0.
const DefaultTopK = 3

// DefaultAnswerTemperature is used when AnswererConfig.Temperature is nil.
const DefaultAnswerTemperature float32 = 0.7

const answerPrompt = `Answer the question based on the context below.

Context:
%s

Question: %s
Answer:`

// Completer generates text for a single prompt. *provider.Generator
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req provider.Request) (string, error)
}

// Source is one retrieved chunk cited by an answer.
type Source struct {
	ID     string  `json:"id"`
	Source string  `json:"source,omitempty"`
	Score  float32 `json:"score"`
	Text   string  `json:"text"`
}

// Answer is the result of a question.
type Answer struct {
	// Text is the model output, unmodified.
	Text string `json:"answer"`

	// Sources lists the chunks that were placed in the prompt, best first.
	Sources []Source `json:"sources"`
}

// AnswererConfig tunes an Answerer.
type AnswererConfig struct {
	// DefaultTopK applies when Answer is called with topK <= 0 (default: 3).
	DefaultTopK int

	// Temperature is the sampling temperature for answers. Nil selects
	// DefaultAnswerTemperature; a pointer to 0 requests greedy decoding.
	Temperature *float32

	// MaxContextTokens caps the estimated prompt size. Lowest-ranked chunks
	// are dropped to fit. Zero disables trimming.
	MaxContextTokens int
}

// Answerer answers questions from indexed documents.
type Answerer struct {
	retriever rag.Retriever
	llm       Completer
	cfg       AnswererConfig
}

// NewAnswerer constructs an Answerer. A nil cfg selects the defaults.
func NewAnswerer(retriever rag.Retriever, llm Completer, cfg *AnswererConfig) (*Answerer, error) {
	if retriever == nil {
		return nil, fmt.Errorf("qa: retriever must not be nil")
	}
	if llm == nil {
		return nil, fmt.Errorf("qa: completer must not be nil")
	}
	var c AnswererConfig
	if cfg != nil {
		c = *cfg
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = DefaultTopK
	}
	temp := DefaultAnswerTemperature
	if c.Temperature != nil {
		temp = *c.Temperature
	}
	c.Temperature = &temp
	return &Answerer{retriever: retriever, llm: llm, cfg: c}, nil
}

// Answer retrieves up to topK chunks relevant to question and asks the
// model to answer from them. When nothing matches, the model is still
// asked, with an empty context block. No step is retried.
func (a *Answerer) Answer(ctx context.Context, question string, topK int) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, rag.Errorf(rag.ErrEmptyInput, "answer", "question is blank")
	}
	if topK <= 0 {
		topK = a.cfg.DefaultTopK
	}

	log := logging.FromContext(ctx)
	start := time.Now()

	docs, err := a.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	if a.cfg.MaxContextTokens > 0 {
		fixed := budget.Estimate(answerPrompt) + budget.Estimate(question)
		var dropped int
		docs, dropped = budget.TrimContext(docs, ContextSeparator, fixed, a.cfg.MaxContextTokens)
		if dropped > 0 {
			log.Warn("qa: context exceeds token budget, dropped lowest-ranked chunks",
				slog.Int("dropped", dropped),
				slog.Int("kept", len(docs)),
				slog.Int("max_context_tokens", a.cfg.MaxContextTokens),
			)
		}
	}

	texts := make([]string, len(docs))
	sources := make([]Source, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
		sources[i] = Source{ID: d.ID, Source: d.Source, Score: d.Score, Text: d.Content}
	}
	contextBlock := strings.Join(texts, ContextSeparator)

	temp := *a.cfg.Temperature
	out, err := a.llm.Complete(ctx, provider.Request{
		Prompt:      BuildAnswerPrompt(contextBlock, question),
		Temperature: &temp,
	})
	if err != nil {
		return nil, rag.Wrap(rag.ErrGenerationFailure, "answer", err)
	}

	log.Info("qa: question answered",
		slog.Int("top_k", topK),
		slog.Int("matches", len(docs)),
		slog.Int("context_chars", len(contextBlock)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return &Answer{Text: out, Sources: sources}, nil
}

// BuildAnswerPrompt renders the answer prompt for a context block and a
// verbatim question.
func BuildAnswerPrompt(contextBlock, question string) string {
	return fmt.Sprintf(answerPrompt, contextBlock, question)
}
