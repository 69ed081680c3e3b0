package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/ragbot-go/internal/ingestion"
)

// maxInputBytes caps documents read from files or stdin.
const maxInputBytes = 10 << 20

// readText reads a UTF-8 document from path, or from stdin when path is
// "-". The result is sanitised.
func readText(path string, stdin io.Reader) (string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", path, maxInputBytes)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", path)
	}
	return ingestion.Sanitize(string(data)), nil
}

// sourceName labels a document for chunk metadata.
func sourceName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}

// isURL reports whether arg should be fetched rather than read from disk.
func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}
