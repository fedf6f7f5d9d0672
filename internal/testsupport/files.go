package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteStagedDocument creates a file at path shaped like a scanned PDF: a
// header line followed by filler up to size bytes. A size smaller than the
// header still produces a valid file.
func WriteStagedDocument(t testing.TB, path string, size int64) {
	t.Helper()

	header := []byte("%PDF-1.4\n")
	if size < int64(len(header)) {
		size = int64(len(header))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}

	body := bytes.Repeat([]byte{'.'}, int(size)-len(header))
	if err := os.WriteFile(path, append(header, body...), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
