// Package audit logs one structured record per CLI command invocation: the
// command, where configuration came from, and the operational environment.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Sources records where configuration was read from for one invocation.
type Sources struct {
	// ConfigFile is the YAML file applied, or empty.
	ConfigFile string
	// DotEnv lists the .env files applied.
	DotEnv []string
}

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	key    string
	secret bool
}

// auditKeys is the ordered list of env vars included in every audit record.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_DIMENSIONS", false},
	{"EMBEDDING_API_KEY", true},
	{"VECTOR_STORE", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"SQLITE_INDEX_PATH", false},
	{"CHUNK_SIZE", false},
	{"CHUNK_OVERLAP", false},
	{"RAG_TOP_K", false},
	{"INGEST_CONCURRENCY", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// LogCommandStart emits the audit record for a command that is starting.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, src Sources) {
	dotenv := make([]string, len(src.DotEnv))
	for i, p := range src.DotEnv {
		dotenv[i] = sanitisePath(p)
	}

	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitisePath(src.ConfigFile)),
		slog.Any("dotenv", dotenv),
	}
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, os.Getenv(entry.key))))
	}

	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// IsSecret reports whether values of key must never be logged. Besides the
// keys listed in auditKeys, any *_API_KEY, *_SECRET_KEY or *_TOKEN variable
// counts as secret.
func IsSecret(key string) bool {
	for _, e := range auditKeys {
		if e.key == key {
			return e.secret
		}
	}
	for _, suffix := range []string{"_API_KEY", "_SECRET_KEY", "_TOKEN"} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// SanitiseKey returns "set" or "unset" for secret keys, or the value itself
// for non-secret keys. The result is safe to log.
func SanitiseKey(key, value string) string {
	if IsSecret(key) {
		return presence(value)
	}
	return valOrUnset(value)
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitisePath returns p with the home directory shortened to "~", or
// "none" if p is empty.
func sanitisePath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
