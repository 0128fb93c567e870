package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes files below a media root served by the HTTP server.
type LocalStorage struct {
	root    string
	baseURL string
}

// NewLocalStorage creates the media root when missing.
func NewLocalStorage(root, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &LocalStorage{root: root, baseURL: baseURL}, nil
}

func (s *LocalStorage) path(name string) (string, string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", "", fmt.Errorf("invalid file name %q", name)
	}
	return clean, filepath.Join(s.root, clean), nil
}

// Save copies r to root/name.
func (s *LocalStorage) Save(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	clean, dst, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return filepath.ToSlash(clean), nil
}

// Delete removes a stored file.
func (s *LocalStorage) Delete(_ context.Context, ref string) error {
	_, dst, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

// URL maps a stored reference below the media URL.
func (s *LocalStorage) URL(ref string) string {
	return joinURL(s.baseURL, ref)
}
