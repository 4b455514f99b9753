package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielkbx/multi-storage/interfaces"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioSchemes are the URL schemes of the MinIO provider.
var MinioSchemes = []string{"minio"}

// minioPartSize bounds the memory used by streamed uploads of unknown size.
const minioPartSize = 16 << 20

// MinioConfig configures a MinIO provider.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	UseTLS    bool
}

// MinioProvider stores content in a MinIO or other S3 compatible server
// through the minio client.
type MinioProvider struct {
	providerInfo

	mc     *minio.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// NewMinioProvider creates a MinIO provider.
func NewMinioProvider(cfg MinioConfig, log *slog.Logger) (*MinioProvider, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: MinIO needs an endpoint and a bucket", interfaces.ErrInvalidLocationURI)
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioProvider{
		providerInfo: providerInfo{
			name:    fmt.Sprintf("minio-%s", cfg.Bucket),
			schemes: MinioSchemes,
		},
		mc:     mc,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}, nil
}

func (p *MinioProvider) GetStream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, key, err := minioLocation(rawURL)
	if err != nil {
		return nil, err
	}

	obj, err := p.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	// GetObject is lazy; Stat surfaces a missing object before the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isMinioNotFound(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, rawURL)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return obj, nil
}

// PostStream uploads the sink content as an object of unknown size.
func (p *MinioProvider) PostStream(ctx context.Context, opts interfaces.WriteOptions) (interfaces.Sink, error) {
	key := ObjectKey(p.prefix, opts)

	return newPipeSink(func(r io.Reader) (string, error) {
		info, err := p.mc.PutObject(ctx, p.bucket, key, r, -1, minio.PutObjectOptions{
			PartSize: minioPartSize,
		})
		if err != nil {
			return "", fmt.Errorf("failed to put object: %w", err)
		}

		p.log.Debug("Stored content in MinIO",
			slog.String("bucket", p.bucket),
			slog.String("key", key),
			slog.Int64("size", info.Size))

		return (&url.URL{Scheme: MinioSchemes[0], Host: p.bucket, Path: "/" + key}).String(), nil
	}), nil
}

func (p *MinioProvider) Delete(ctx context.Context, rawURL string) error {
	bucket, key, err := minioLocation(rawURL)
	if err != nil {
		return err
	}

	if err := p.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

func minioLocation(rawURL string) (string, string, error) {
	u, err := parseObjectURL(rawURL, MinioSchemes...)
	if err != nil {
		return "", "", err
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: expected minio://bucket/key, got %q", interfaces.ErrInvalidURL, rawURL)
	}
	return u.Host, key, nil
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
