// Package fetch downloads third-party source archives and unpacks them.
package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nativebuild/internal/fileutil"
	"nativebuild/internal/logging"
	"nativebuild/internal/services"
)

const defaultTimeout = 5 * time.Minute

// Archive names one download and where it unpacks.
type Archive struct {
	Name string
	URL  string
	// Path is where the downloaded zip is stored.
	Path string
	// Dest is the directory the archive is extracted into.
	Dest string
}

// Option configures the fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client (primarily for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fetcher downloads and extracts archives.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// New constructs a fetcher whose downloads time out after timeout.
func New(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f := &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads archive.URL to archive.Path and extracts it into archive.Dest.
// It returns the number of extracted files.
func (f *Fetcher) Fetch(ctx context.Context, archive Archive) (int, error) {
	f.logger.Info("downloading archive",
		logging.String("archive", archive.Name),
		logging.String("url", archive.URL),
	)
	if err := f.download(ctx, archive); err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "fetch", archive.Name, "download", err)
	}
	count, err := Extract(archive.Path, archive.Dest)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "fetch", archive.Name, "extract", err)
	}
	f.logger.Debug("archive extracted",
		logging.String("archive", archive.Name),
		logging.String("path", archive.Dest),
		logging.Int("files", count),
	)
	return count, nil
}

func (f *Fetcher) download(ctx context.Context, archive Archive) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archive.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", archive.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %d", archive.URL, resp.StatusCode)
	}

	return fileutil.WriteAtomic(archive.Path, resp.Body, 0o644)
}

// Extract unpacks the zip at path into dest. Entries that would land outside
// dest are rejected.
func Extract(path, dest string) (int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, fmt.Errorf("resolve destination: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}

	count := 0
	for _, file := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(file.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return count, fmt.Errorf("archive entry %q escapes %s", file.Name, dest)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}
		if err := extractFile(file, target); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", file.Name, err)
	}
	defer rc.Close()

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}
