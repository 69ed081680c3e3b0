package qa

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/provider"
	"github.com/54b3r/ragbot-go/internal/rag"
	"github.com/54b3r/ragbot-go/internal/validate"
)

// Input bounds for Analyze, measured on the trimmed text.
const (
	MinAnalysisChars = 100
	MaxAnalysisChars = 10000
	MinAnalysisWords = 50
)

// Sentiments lists the expected sentiment labels.
var Sentiments = []string{"positive", "negative", "neutral"}

// AnalysisSchema is the expected shape of an analysis response.
var AnalysisSchema = validate.Schema{
	Name: "analysis",
	Fields: []validate.Field{
		{Key: "summary", Kind: validate.StringList, MinItems: 3, MaxItems: 5},
		{Key: "entities", Kind: validate.ObjectList, SubKeys: []string{"name", "role"}, MinItems: 3, MaxItems: 3},
		{Key: "sentiment", Kind: validate.Enum, Enum: Sentiments},
	},
}

const analysisSystemPrompt = "You are a helpful assistant that analyzes text and responds with properly formatted JSON."

const analysisPrompt = `Analyze the following text and respond in JSON format with exactly these keys: "summary", "entities" and "sentiment".

Instructions:
1. Summary: 3-5 bullet points summarizing the key points of the text.
2. Entities: exactly 3 key entities (people, organizations, concepts) and their roles.
3. Sentiment: the overall sentiment, one of "positive", "negative" or "neutral".

Text to analyze:
%s

Respond with a single valid JSON object in this exact format:
{
    "summary": ["First key point", "Second key point", "Third key point"],
    "entities": [
        {"name": "Entity Name 1", "role": "Description of role"},
        {"name": "Entity Name 2", "role": "Description of role"},
        {"name": "Entity Name 3", "role": "Description of role"}
    ],
    "sentiment": "positive/negative/neutral"
}`

// Entity is a key entity named in analysed text.
type Entity struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// AnalysisResult is the structured output of Analyze.
type AnalysisResult struct {
	Summary   []string           `json:"summary"`
	Entities  []Entity           `json:"entities"`
	Sentiment string             `json:"sentiment"`
	Warnings  []validate.Warning `json:"warnings,omitempty"`
}

// SentimentKnown reports whether Sentiment is one of Sentiments.
func (r *AnalysisResult) SentimentKnown() bool {
	return slices.Contains(Sentiments, r.Sentiment)
}

// Analyzer extracts a summary, entities and sentiment from text.
type Analyzer struct {
	llm Completer
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(llm Completer) (*Analyzer, error) {
	if llm == nil {
		return nil, fmt.Errorf("qa: completer must not be nil")
	}
	return &Analyzer{llm: llm}, nil
}

// CheckAnalysisInput reports whether text is long enough to analyse.
func CheckAnalysisInput(text string) error {
	t := strings.TrimSpace(text)
	if t == "" {
		return rag.Errorf(rag.ErrEmptyInput, "analyze", "text is blank")
	}
	if n := utf8.RuneCountInString(t); n < MinAnalysisChars || n > MaxAnalysisChars {
		return rag.Errorf(rag.ErrInvalidInput, "analyze",
			"text must be between %d and %d characters, got %d", MinAnalysisChars, MaxAnalysisChars, n)
	}
	if n := len(strings.Fields(t)); n < MinAnalysisWords {
		return rag.Errorf(rag.ErrInvalidInput, "analyze",
			"text should contain at least %d words for meaningful analysis, got %d", MinAnalysisWords, n)
	}
	return nil
}

// Analyze asks the model for a structured analysis of text and validates
// the response. Malformed JSON fails with rag.ErrMalformedOutput and a
// response missing keys or with mistyped values fails with
// rag.ErrSchemaViolation. An unexpected sentiment or item count is kept and
// reported in AnalysisResult.Warnings.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*AnalysisResult, error) {
	if err := CheckAnalysisInput(text); err != nil {
		return nil, err
	}

	temp := float32(0.3)
	raw, err := a.llm.Complete(ctx, provider.Request{
		System:      analysisSystemPrompt,
		Prompt:      fmt.Sprintf(analysisPrompt, strings.TrimSpace(text)),
		Temperature: &temp,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, rag.Wrap(rag.ErrGenerationFailure, "analyze", err)
	}

	log := logging.FromContext(ctx)
	out, res, err := validate.Decode[AnalysisResult](raw, AnalysisSchema)
	if err != nil {
		log.Error("qa: analysis output rejected",
			slog.Int("response_chars", len(raw)),
			slog.String("excerpt", logging.Excerpt(raw, logging.ExcerptRunes)),
			slog.String("error", err.Error()),
		)
		if rag.KindOf(err) == nil {
			err = rag.Wrap(rag.ErrSchemaViolation, "analyze", err)
		}
		return nil, err
	}

	out.Warnings = res.Warnings
	if len(out.Warnings) > 0 {
		log.Warn("qa: analysis output accepted with warnings",
			slog.Int("warnings", len(out.Warnings)),
			slog.String("sentiment", out.Sentiment),
		)
	}
	return &out, nil
}
