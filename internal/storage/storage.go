// Package storage saves uploaded recipe images and resolves their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"recipebook/internal/config"
)

// Storage persists uploaded files. Save returns the reference stored on the
// record; URL turns that reference into something a browser can fetch.
// Delete of a missing reference is not an error.
type Storage interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
	URL(ref string) string
}

// New picks the backend named in the configuration.
func New(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.StorageBackend {
	case "local", "":
		return NewLocalStorage(cfg.MediaRoot, cfg.MediaURL)
	case "s3":
		return NewS3Storage(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

// UploadName builds a collision-free key under dir keeping the extension of
// the client's filename.
func UploadName(dir, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join(dir, uuid.New().String()+ext)
}

func joinURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(ref, "/")
}
