package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// ELFHeader is the leading magic of a Linux executable.
const ELFHeader = "\x7fELF\x02\x01\x01"

// WriteFile creates path, including parent directories, with contents.
func WriteFile(t testing.TB, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteTree writes every file in files (slash separated paths relative to
// root).
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, contents := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), contents)
	}
}

// WriteScript writes an executable shell script at path.
func WriteScript(t testing.TB, path, body string) {
	t.Helper()

	WriteFile(t, path, "#!/bin/sh\n"+body)
	if err := os.Chmod(path, 0o755); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
}
