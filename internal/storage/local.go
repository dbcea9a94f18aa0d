package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalProvider keeps objects as files below a base directory.
type LocalProvider struct {
	basePath string
}

func NewLocalProvider(basePath string) (*LocalProvider, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory %s: %w", basePath, err)
	}
	return &LocalProvider{basePath: basePath}, nil
}

func (p *LocalProvider) path(key string) (string, error) {
	if !filepath.IsLocal(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(p.basePath, key), nil
}

// Create writes to a temporary file next to the target and renames it on commit.
func (p *LocalProvider) Create(ctx context.Context, key string) (Writer, error) {
	full, err := p.path(key)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(full)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create file for %s: %w", key, err)
	}
	return &localWriter{f: f, path: full}, nil
}

func (p *LocalProvider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := p.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}

func (p *LocalProvider) URL(key string) string {
	abs, err := filepath.Abs(filepath.Join(p.basePath, key))
	if err != nil {
		abs = filepath.Join(p.basePath, key)
	}
	return "file://" + filepath.ToSlash(abs)
}

type localWriter struct {
	f    *os.File
	path string
}

func (w *localWriter) Write(b []byte) (int, error) {
	return w.f.Write(b)
}

func (w *localWriter) Commit() error {
	if err := w.f.Sync(); err != nil {
		w.Abort(err)
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	if err := os.Rename(w.f.Name(), w.path); err != nil {
		os.Remove(w.f.Name())
		return fmt.Errorf("rename into %s: %w", w.path, err)
	}
	slog.Info("local file write completed", "path", w.path)
	return nil
}

func (w *localWriter) Abort(err error) {
	w.f.Close()
	if rmErr := os.Remove(w.f.Name()); rmErr != nil {
		slog.Warn("failed to remove partial file", "path", w.f.Name(), "error", rmErr)
	}
	slog.Info("local file write aborted", "path", w.path, "error", err)
}
