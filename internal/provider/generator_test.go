package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragbot-go/internal/rag"
)

// fakeChatModel records the last call and replies with a fixed message.
type fakeChatModel struct {
	reply string
	err   error
	delay time.Duration

	gotMsgs []*schema.Message
	gotOpts *model.Options
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.gotMsgs = input
	f.gotOpts = model.GetCommonOptions(&model.Options{}, opts...)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestGenerator_Complete(t *testing.T) {
	t.Parallel()
	fm := &fakeChatModel{reply: "  answer text  "}
	g, err := NewGenerator(fm, nil)
	if err != nil {
		t.Fatalf("NewGenerator() = %v", err)
	}

	temp := float32(0.3)
	got, err := g.Complete(context.Background(), Request{
		System:      "be terse",
		Prompt:      "hello",
		Temperature: &temp,
		MaxTokens:   1000,
	})
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if got != "  answer text  " {
		t.Errorf("Complete() = %q, want raw model output", got)
	}
	if len(fm.gotMsgs) != 2 || fm.gotMsgs[0].Role != schema.System || fm.gotMsgs[1].Content != "hello" {
		t.Errorf("unexpected messages: %+v", fm.gotMsgs)
	}
	if fm.gotOpts.Temperature == nil || *fm.gotOpts.Temperature != 0.3 {
		t.Errorf("temperature option not forwarded: %+v", fm.gotOpts.Temperature)
	}
	if fm.gotOpts.MaxTokens == nil || *fm.gotOpts.MaxTokens != 1000 {
		t.Errorf("max tokens option not forwarded: %+v", fm.gotOpts.MaxTokens)
	}
}

func TestGenerator_OmitTemperature(t *testing.T) {
	t.Parallel()
	fm := &fakeChatModel{reply: "ok"}
	g, _ := NewGenerator(fm, &GeneratorConfig{OmitTemperature: true})

	temp := float32(0.7)
	if _, err := g.Complete(context.Background(), Request{Prompt: "q", Temperature: &temp}); err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if fm.gotOpts.Temperature != nil {
		t.Errorf("temperature should be omitted, got %v", *fm.gotOpts.Temperature)
	}
	if len(fm.gotMsgs) != 1 {
		t.Errorf("want only the user message without a system prompt, got %d", len(fm.gotMsgs))
	}
}

func TestGenerator_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		model    *fakeChatModel
		cfg      *GeneratorConfig
		wantKind error
		wantCtx  bool
	}{
		{"backend error", &fakeChatModel{err: errors.New("503 upstream")}, nil, rag.ErrGenerationFailure, false},
		{"empty reply", &fakeChatModel{reply: " \n"}, nil, rag.ErrGenerationFailure, false},
		{"timeout", &fakeChatModel{reply: "late", delay: time.Second}, &GeneratorConfig{Timeout: 10 * time.Millisecond}, rag.ErrGenerationFailure, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g, _ := NewGenerator(tc.model, tc.cfg)
			_, err := g.Complete(context.Background(), Request{Prompt: "q"})
			if !errors.Is(err, tc.wantKind) {
				t.Fatalf("Complete() error = %v, want kind %v", err, tc.wantKind)
			}
			if tc.wantCtx && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Complete() error = %v, want deadline exceeded", err)
			}
		})
	}
}

func TestGenerator_BlankPrompt(t *testing.T) {
	t.Parallel()
	fm := &fakeChatModel{reply: "x"}
	g, _ := NewGenerator(fm, nil)
	_, err := g.Complete(context.Background(), Request{Prompt: "   "})
	if !errors.Is(err, rag.ErrEmptyInput) {
		t.Fatalf("Complete() error = %v, want ErrEmptyInput", err)
	}
	if fm.gotMsgs != nil {
		t.Error("model must not be called for a blank prompt")
	}
}

func TestNewGenerator_NilModel(t *testing.T) {
	t.Parallel()
	if _, err := NewGenerator(nil, nil); err == nil {
		t.Fatal("expected error for nil model")
	}
}
