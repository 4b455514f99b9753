package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielkbx/multi-storage/interfaces"
)

// FileSchemes are the URL schemes of the file provider.
var FileSchemes = []string{"file"}

var errOutsideBaseDir = errors.New("path outside of base directory")

// FileProvider stores content in a directory of the local file system.
// It only implements the stream operations.
type FileProvider struct {
	providerInfo

	baseDir string
	log     *slog.Logger
}

// NewFileProvider creates a file provider rooted at baseDir, creating the
// directory if it does not exist.
func NewFileProvider(baseDir string, log *slog.Logger) (*FileProvider, error) {
	if log == nil {
		log = slog.Default()
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileProvider{
		providerInfo: providerInfo{
			name:    fmt.Sprintf("file-%s", filepath.Base(abs)),
			schemes: FileSchemes,
		},
		baseDir: abs,
		log:     log,
	}, nil
}

// BaseDir returns the absolute directory the provider writes to.
func (p *FileProvider) BaseDir() string {
	return p.baseDir
}

func (p *FileProvider) GetStream(_ context.Context, rawURL string) (io.ReadCloser, error) {
	filePath, err := p.pathFor(rawURL)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, rawURL)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// PostStream writes into a temporary file that is renamed into place on commit.
func (p *FileProvider) PostStream(_ context.Context, opts interfaces.WriteOptions) (interfaces.Sink, error) {
	filePath := filepath.Join(p.baseDir, filepath.FromSlash(ObjectKey("", opts)))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	return &fileSink{provider: p, tmp: tmp, path: filePath}, nil
}

// Delete removes the file stored at rawURL. Deleting a missing file is not an error.
func (p *FileProvider) Delete(_ context.Context, rawURL string) error {
	filePath, err := p.pathFor(rawURL)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// pathFor maps a file URL to a path below the base directory.
func (p *FileProvider) pathFor(rawURL string) (string, error) {
	u, err := parseObjectURL(rawURL, FileSchemes...)
	if err != nil {
		return "", err
	}

	filePath := filepath.Clean(filepath.FromSlash(u.Path))
	rel, err := filepath.Rel(p.baseDir, filePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errOutsideBaseDir, rawURL)
	}
	return filePath, nil
}

type fileSink struct {
	provider *FileProvider
	tmp      *os.File
	path     string
	written  int64
}

func (s *fileSink) Write(b []byte) (int, error) {
	n, err := s.tmp.Write(b)
	s.written += int64(n)
	return n, err
}

func (s *fileSink) Commit() (string, error) {
	if err := s.tmp.Close(); err != nil {
		os.Remove(s.tmp.Name())
		return "", fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(s.tmp.Name(), s.path); err != nil {
		os.Remove(s.tmp.Name())
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	s.provider.log.Debug("Stored content in file",
		slog.String("path", s.path),
		slog.Int64("size", s.written))

	return (&url.URL{Scheme: FileSchemes[0], Path: filepath.ToSlash(s.path)}).String(), nil
}

func (s *fileSink) Abort(err error) {
	s.tmp.Close()
	os.Remove(s.tmp.Name())
	s.provider.log.Debug("Discarded partial file", slog.String("path", s.path), "err", err)
}
