// Package storage archives recording files to the local content root or an S3 bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dkeye/Meet/internal/config"
)

type Storage interface {
	// Write stores r under key. size is -1 when unknown.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// GetURL returns a path or presigned URL valid for expires.
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// New builds the backend selected by cfg.Type. Local storage is rooted at contentRoot.
func New(ctx context.Context, cfg config.StorageConfig, contentRoot string) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(contentRoot)
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
}

// UploadFile copies a local file into s under key.
func UploadFile(ctx context.Context, s Storage, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return s.Write(ctx, key, f, st.Size(), "video/mp4")
}
