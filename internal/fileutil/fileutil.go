package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadMagic returns up to n leading bytes of path. Shorter files return what
// they have.
func ReadMagic(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// WriteAtomic streams r into path+".tmp" and renames it over path, so readers
// never observe a partial file. The temp file is removed on failure.
func WriteAtomic(path string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tempPath := path + ".tmp"
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// RemoveDirs deletes every directory in dirs, ignoring errors. It returns the
// directories that still exist afterwards.
func RemoveDirs(dirs []string) []string {
	var remaining []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		_ = os.RemoveAll(dir)
		if _, err := os.Lstat(dir); err == nil {
			remaining = append(remaining, dir)
		}
	}
	return remaining
}
