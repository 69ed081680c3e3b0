package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragbot-go/internal/rag"
	"github.com/54b3r/ragbot-go/internal/validate"
)

// sampleText is comfortably above the word and character floors.
var sampleText = strings.Repeat("The city council approved a new budget for public libraries and parks. ", 6)

const mixedAnalysis = "```json\n" + `{
  "summary": ["Budget approved", "Libraries funded", "Parks funded"],
  "entities": [
    {"name": "City council", "role": "approved the budget"},
    {"name": "Public libraries", "role": "receive funding"},
    {"name": "Parks", "role": "receive funding"}
  ],
  "sentiment": "mixed"
}` + "\n```"

func TestCheckAnalysisInput(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		want error
	}{
		{"blank", " \n\t", rag.ErrEmptyInput},
		{"too short", "Too short to analyse.", rag.ErrInvalidInput},
		{"too long", strings.Repeat("word ", 2001), rag.ErrInvalidInput},
		{"few words", strings.Repeat("antidisestablishmentarianism ", 10), rag.ErrInvalidInput},
		{"ok", sampleText, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := CheckAnalysisInput(tc.text)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAnalyze_MixedSentimentIsFlagged(t *testing.T) {
	t.Parallel()
	llm := &fakeCompleter{reply: mixedAnalysis}
	a, err := NewAnalyzer(llm)
	require.NoError(t, err)

	res, err := a.Analyze(context.Background(), sampleText)
	require.NoError(t, err)

	assert.Equal(t, "mixed", res.Sentiment)
	assert.False(t, res.SentimentKnown())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "sentiment", res.Warnings[0].Field)
	assert.Len(t, res.Summary, 3)
	assert.Equal(t, Entity{Name: "City council", Role: "approved the budget"}, res.Entities[0])

	req := llm.reqs[0]
	assert.Equal(t, analysisSystemPrompt, req.System)
	assert.Contains(t, req.Prompt, strings.TrimSpace(sampleText))
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.3, *req.Temperature, 1e-6)
	assert.Equal(t, 1000, req.MaxTokens)
}

func TestAnalyze_KnownSentiment(t *testing.T) {
	t.Parallel()
	reply := strings.Replace(mixedAnalysis, `"mixed"`, `"positive"`, 1)
	a, _ := NewAnalyzer(&fakeCompleter{reply: reply})

	res, err := a.Analyze(context.Background(), sampleText)
	require.NoError(t, err)
	assert.True(t, res.SentimentKnown())
	assert.Empty(t, res.Warnings)
}

func TestAnalyze_OutputErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		reply string
		err   error
		want  error
	}{
		{"malformed", "Here is your analysis: summary is good", nil, rag.ErrMalformedOutput},
		{"missing entities", `{"summary": ["a", "b", "c"], "sentiment": "neutral"}`, nil, rag.ErrSchemaViolation},
		{"model down", "", errors.New("connection refused"), rag.ErrGenerationFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a, _ := NewAnalyzer(&fakeCompleter{reply: tc.reply, err: tc.err})
			_, err := a.Analyze(context.Background(), sampleText)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAnalyze_MissingEntitiesNamed(t *testing.T) {
	t.Parallel()
	a, _ := NewAnalyzer(&fakeCompleter{reply: `{"summary": ["a", "b", "c"], "sentiment": "neutral"}`})
	_, err := a.Analyze(context.Background(), sampleText)

	var se *validate.SchemaViolationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"entities"}, se.Missing)
}

func TestAnalyze_InvalidInputSkipsModel(t *testing.T) {
	t.Parallel()
	llm := &fakeCompleter{reply: mixedAnalysis}
	a, _ := NewAnalyzer(llm)
	_, err := a.Analyze(context.Background(), "short")
	assert.ErrorIs(t, err, rag.ErrInvalidInput)
	assert.Zero(t, llm.calls())
}
