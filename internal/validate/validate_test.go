package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragbot-go/internal/rag"
)

var testSchema = Schema{
	Name: "analysis",
	Fields: []Field{
		{Key: "summary", Kind: StringList, MinItems: 3, MaxItems: 5},
		{Key: "entities", Kind: ObjectList, SubKeys: []string{"name", "role"}, MinItems: 3, MaxItems: 3},
		{Key: "sentiment", Kind: Enum, Enum: []string{"positive", "negative", "neutral"}},
	},
}

const validBody = `{
  "summary": ["one", "two", "three"],
  "entities": [
    {"name": "Ada", "role": "engineer"},
    {"name": "Bob", "role": "manager"},
    {"name": "Eve", "role": "auditor"}
  ],
  "sentiment": "positive"
}`

func TestStripFences(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, in, want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n\t", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence padded", "\n  ```json\n{\"a\":1}\n```  \n", `{"a":1}`},
		{"only leading", "```json\n{\"a\":1}", `{"a":1}`},
		{"space before tag", "``` json\n{\"a\":1}\n```", `{"a":1}`},
		{"trailing prose", "```\n{\"a\":1}\n```\nHope this helps", `{"a":1}`},
		{"tagged with prose", "```JSON\n{\"a\":1}\n```\n\nLet me know.", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestValidate_FencedEqualsBare(t *testing.T) {
	t.Parallel()
	bare, err := Validate(validBody, testSchema)
	require.NoError(t, err)
	fenced, err := Validate("```json\n"+validBody+"\n```", testSchema)
	require.NoError(t, err)

	assert.Equal(t, bare.Object, fenced.Object)
	assert.Equal(t, VerdictValid, fenced.Verdict())
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()
	raw := "Sure! Here is the analysis: " + strings.Repeat("blah ", 100)
	_, err := Validate(raw, testSchema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrMalformedOutput))

	var me *MalformedOutputError
	require.True(t, errors.As(err, &me))
	assert.Len(t, []rune(me.Excerpt), 200)
	assert.True(t, strings.HasPrefix(me.Excerpt, "Sure! Here is"))
}

func TestValidate_NotObject(t *testing.T) {
	t.Parallel()
	_, err := Validate(`["a", "b"]`, testSchema)
	var se *SchemaViolationError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.NotObject)
	assert.True(t, errors.Is(err, rag.ErrSchemaViolation))
}

func TestValidate_MissingEntities(t *testing.T) {
	t.Parallel()
	_, err := Validate(`{"summary": ["a", "b", "c"], "sentiment": "neutral"}`, testSchema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrSchemaViolation))

	var se *SchemaViolationError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"entities"}, se.Missing)
	assert.Contains(t, err.Error(), "entities")
}

func TestValidate_ReportsAllMissingKeys(t *testing.T) {
	t.Parallel()
	_, err := Validate(`{}`, testSchema)
	var se *SchemaViolationError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"summary", "entities", "sentiment"}, se.Missing)
}

func TestValidate_TypeMismatch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, body, key string
	}{
		{"summary not list", `{"summary": "text", "entities": [], "sentiment": "neutral"}`, "summary"},
		{"summary item not string", `{"summary": ["a", 2], "entities": [], "sentiment": "neutral"}`, "summary"},
		{"entities not list", `{"summary": [], "entities": {"name": "x"}, "sentiment": "neutral"}`, "entities"},
		{"entity missing role", `{"summary": [], "entities": [{"name": "x"}], "sentiment": "neutral"}`, "entities"},
		{"sentiment not string", `{"summary": [], "entities": [], "sentiment": 3}`, "sentiment"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Validate(tc.body, testSchema)
			var se *SchemaViolationError
			require.True(t, errors.As(err, &se), "err = %v", err)
			assert.Equal(t, []string{tc.key}, se.InvalidKeys())
			assert.Empty(t, se.Missing)
		})
	}
}

func TestValidate_UnknownSentimentIsWarning(t *testing.T) {
	t.Parallel()
	body := strings.Replace(validBody, `"positive"`, `"mixed"`, 1)
	res, err := Validate(body, testSchema)
	require.NoError(t, err)

	assert.Equal(t, VerdictValidWithWarnings, res.Verdict())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "sentiment", res.Warnings[0].Field)
	assert.Equal(t, "mixed", res.Warnings[0].Value)
	assert.Equal(t, "mixed", res.Object["sentiment"])
}

func TestValidate_ItemCountIsWarning(t *testing.T) {
	t.Parallel()
	body := `{"summary": ["only one"], "entities": [], "sentiment": "neutral"}`
	res, err := Validate(body, testSchema)
	require.NoError(t, err)
	assert.Equal(t, VerdictValidWithWarnings, res.Verdict())

	fields := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		fields = append(fields, w.Field)
	}
	assert.Equal(t, []string{"summary", "entities"}, fields)
}

func TestValidate_OptionalField(t *testing.T) {
	t.Parallel()
	s := Schema{Name: "opt", Fields: []Field{
		{Key: "a", Kind: String},
		{Key: "b", Kind: String, Optional: true},
	}}
	res, err := Validate(`{"a": "x"}`, s)
	require.NoError(t, err)
	assert.Equal(t, VerdictValid, res.Verdict())
}

func TestDecode(t *testing.T) {
	t.Parallel()
	type entity struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	type analysis struct {
		Summary   []string `json:"summary"`
		Entities  []entity `json:"entities"`
		Sentiment string   `json:"sentiment"`
	}

	got, res, err := Decode[analysis]("```json\n"+validBody+"\n```", testSchema)
	require.NoError(t, err)
	assert.Equal(t, VerdictValid, res.Verdict())
	assert.Equal(t, []string{"one", "two", "three"}, got.Summary)
	require.Len(t, got.Entities, 3)
	assert.Equal(t, entity{Name: "Ada", Role: "engineer"}, got.Entities[0])
	assert.Equal(t, "positive", got.Sentiment)
}
