package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/config"
)

// BlobStore captures the minimal object-storage operations the sync needs.
// The bucket is fixed when the store is built; keys are full object keys.
type BlobStore interface {
	// ListNames returns the names directly under prefix with the prefix
	// stripped. Pseudo-folder markers and nested keys are omitted.
	ListNames(ctx context.Context, prefix string) ([]string, error)
	// Upload stores r under key. size may be -1 when unknown.
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
	// Download returns the full content of key.
	Download(ctx context.Context, key string) ([]byte, error)
}

// New builds the BlobStore selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (BlobStore, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return NewS3Store(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	case config.BackendMinio:
		return NewMinioStore(MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
	case config.BackendChartmuseum:
		return NewChartmuseumStore(ChartmuseumConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
			LocalDir:  cfg.LocalDir,
		}, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// childName strips prefix from key and reports whether what is left names
// an object directly under prefix.
func childName(prefix, key string) (string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(key, prefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
