package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("OPENAI_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("VECTOR_STORE", "sqlite"); got != "sqlite" {
		t.Errorf("expected 'sqlite', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestIsSecret(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key  string
		want bool
	}{
		{"QDRANT_API_KEY", true},
		{"LANGFUSE_PUBLIC_KEY", true},
		{"SOME_VENDOR_API_KEY", true},
		{"GITHUB_TOKEN", true},
		{"QDRANT_HOST", false},
		{"CHUNK_SIZE", false},
	}
	for _, tt := range tests {
		if got := IsSecret(tt.key); got != tt.want {
			t.Errorf("IsSecret(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestSanitisePath(t *testing.T) {
	t.Parallel()
	if got := sanitisePath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitisePath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.ragbot/config.yaml"
		if got := sanitisePath(p); got != "~/.ragbot/config.yaml" {
			t.Errorf("expected '~/.ragbot/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("QDRANT_API_KEY", "super-secret")
	t.Setenv("VECTOR_STORE", "qdrant")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(context.Background(), log, "serve", Sources{DotEnv: []string{".env"}})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode audit record: %v", err)
	}
	if rec["command"] != "serve" {
		t.Errorf("command: got %v", rec["command"])
	}
	if rec["QDRANT_API_KEY"] != "set" {
		t.Errorf("QDRANT_API_KEY must be redacted, got %v", rec["QDRANT_API_KEY"])
	}
	if rec["VECTOR_STORE"] != "qdrant" {
		t.Errorf("VECTOR_STORE: got %v", rec["VECTOR_STORE"])
	}
	if bytes.Contains(buf.Bytes(), []byte("super-secret")) {
		t.Error("secret value leaked into audit record")
	}
}
