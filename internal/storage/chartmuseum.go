package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chartmuseum/storage"
	"github.com/rs/zerolog"
)

// ChartmuseumConfig selects a chartmuseum storage backend. Without an
// endpoint the objects live on the local filesystem under LocalDir/Bucket.
type ChartmuseumConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	LocalDir  string
}

// ChartmuseumStore implements BlobStore for S3-compatible services and
// local directories through chartmuseum's storage backends.
type ChartmuseumStore struct {
	backend storage.Backend
	// root is the directory of a local filesystem backend; prefix
	// directories are created under it before listing.
	root string
}

// NewChartmuseumStore builds a new ChartmuseumStore.
func NewChartmuseumStore(cfg ChartmuseumConfig, log zerolog.Logger) (*ChartmuseumStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket must be provided")
	}

	if cfg.Endpoint == "" {
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("local storage dir must be provided when no endpoint is set")
		}
		root := filepath.Join(cfg.LocalDir, cfg.Bucket)
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("failed creating storage root %s: %w", root, err)
		}
		log.Info().Str("root", root).Msg("Using local filesystem storage")
		return NewChartmuseumStoreWithBackend(storage.NewLocalFilesystemBackend(root), root), nil
	}

	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials must be provided")
	}

	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if !cfg.UseSSL {
			scheme = "http"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, strings.TrimPrefix(cfg.Endpoint, "//"))
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	// the amazon backend reads credentials from the environment
	if err := setEnv(map[string]string{
		"AWS_ACCESS_KEY_ID":     cfg.AccessKey,
		"AWS_SECRET_ACCESS_KEY": cfg.SecretKey,
		"AWS_REGION":            region,
		"AWS_DEFAULT_REGION":    region,
	}); err != nil {
		return nil, err
	}

	backend := storage.NewAmazonS3BackendWithOptions(
		cfg.Bucket,
		"", // no prefix
		region,
		endpoint,
		"",
		&storage.AmazonS3Options{
			S3ForcePathStyle: awsBool(true),
		},
	)
	log.Info().Str("endpoint", endpoint).Str("bucket", cfg.Bucket).Msg("Using S3-compatible storage")

	return NewChartmuseumStoreWithBackend(backend, ""), nil
}

// NewChartmuseumStoreWithBackend wraps an existing backend. root is the
// local directory of a filesystem backend, empty otherwise.
func NewChartmuseumStoreWithBackend(backend storage.Backend, root string) *ChartmuseumStore {
	return &ChartmuseumStore{backend: backend, root: root}
}

func (c *ChartmuseumStore) ListNames(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.root != "" {
		if err := os.MkdirAll(filepath.Join(c.root, filepath.FromSlash(prefix)), 0o755); err != nil {
			return nil, fmt.Errorf("failed creating %s: %w", prefix, err)
		}
	}

	objects, err := c.backend.ListObjects(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, fmt.Errorf("list %s failed: %w", prefix, err)
	}

	names := make([]string, 0, len(objects))
	for _, object := range objects {
		// backends report paths relative to the listed prefix
		key := object.Path
		if !strings.HasPrefix(key, prefix) {
			key = prefix + key
		}
		if name, ok := childName(prefix, key); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// Upload buffers r in memory; chartmuseum backends take whole byte slices.
func (c *ChartmuseumStore) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("read body for %s: %w", key, err)
	}
	if err := c.backend.PutObject(key, buf.Bytes()); err != nil {
		return fmt.Errorf("upload %s failed: %w", key, err)
	}
	return nil
}

func (c *ChartmuseumStore) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	object, err := c.backend.GetObject(key)
	if err != nil {
		return nil, fmt.Errorf("download %s failed: %w", key, err)
	}
	return object.Content, nil
}

var _ BlobStore = (*ChartmuseumStore)(nil)

func setEnv(vars map[string]string) error {
	for key, value := range vars {
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed setting %s: %w", key, err)
		}
	}
	return nil
}

func awsBool(v bool) *bool {
	return &v
}
