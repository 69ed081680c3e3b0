package qa

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragbot-go/internal/ingestion"
	"github.com/54b3r/ragbot-go/internal/provider"
	"github.com/54b3r/ragbot-go/internal/rag"
)

// keywordEmbedder maps text to keyword counts plus a constant component so
// no vector is zero.
type keywordEmbedder struct {
	keywords []string
}

func (k keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		v := make([]float32, len(k.keywords)+1)
		for j, kw := range k.keywords {
			v[j] = float32(strings.Count(lower, kw))
		}
		v[len(k.keywords)] = 0.1
		out[i] = v
	}
	return out, nil
}

// contextBlock extracts the context block from an answer prompt.
func contextBlock(prompt string) string {
	_, rest, _ := strings.Cut(prompt, "Context:\n")
	block, _, _ := strings.Cut(rest, "\n\nQuestion: ")
	return block
}

func TestEndToEnd_BestChunkReachesModel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	paragraphs := []string{
		strings.TrimSpace(strings.Repeat("Apples grow in orchards. ", 6)),
		strings.TrimSpace(strings.Repeat("Rockets launch at dawn. ", 6)),
		strings.TrimSpace(strings.Repeat("Oceans cover the earth. ", 6)),
	}
	text := strings.Join(paragraphs, "\n\n")

	emb := keywordEmbedder{keywords: []string{"apple", "rocket", "ocean"}}
	store := rag.NewMemoryStore()

	pipe, err := ingestion.NewPipeline(emb, store, &ingestion.Config{ChunkSize: 200, ChunkOverlap: 0})
	require.NoError(t, err)
	res, err := pipe.Ingest(ctx, ingestion.Document{Text: text, ID: "doc"})
	require.NoError(t, err)
	require.Equal(t, 3, res.ChunkCount)

	retriever, err := rag.NewRetriever(emb, store, nil)
	require.NoError(t, err)

	llm := &fakeCompleter{respond: func(req provider.Request) string {
		return fmt.Sprintf("context length: %d", len(contextBlock(req.Prompt)))
	}}
	answerer, err := NewAnswerer(retriever, llm, nil)
	require.NoError(t, err)

	ans, err := answerer.Answer(ctx, "When do rockets launch?", 1)
	require.NoError(t, err)

	require.Len(t, ans.Sources, 1)
	assert.Equal(t, ingestion.ChunkID("doc", 1), ans.Sources[0].ID)
	assert.Contains(t, ans.Sources[0].Text, paragraphs[1])

	got := contextBlock(llm.reqs[0].Prompt)
	assert.Contains(t, got, paragraphs[1])
	assert.Equal(t, fmt.Sprintf("context length: %d", len(ans.Sources[0].Text)), ans.Text)

	// With a wider k the best chunk still leads the context block.
	ans, err = answerer.Answer(ctx, "When do rockets launch?", 3)
	require.NoError(t, err)
	require.Len(t, ans.Sources, 3)
	assert.Equal(t, ingestion.ChunkID("doc", 1), ans.Sources[0].ID)
	assert.True(t, strings.HasPrefix(contextBlock(llm.reqs[1].Prompt), ans.Sources[0].Text))
}
