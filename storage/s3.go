package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danielkbx/multi-storage/interfaces"
)

// S3Schemes are the URL schemes of the S3 provider.
var S3Schemes = []string{"s3"}

// S3Config configures an S3 provider.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	// AccessKey and SecretKey are optional; without them the default AWS
	// credential chain is used.
	AccessKey string
	SecretKey string

	// ACL is applied to every written object when set, e.g. "public-read".
	ACL string
}

// S3Provider stores content in Amazon S3 or a compatible service.
// Streamed writes use multipart uploads.
type S3Provider struct {
	providerInfo

	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
	acl      string
	log      *slog.Logger
}

// NewS3Provider creates an S3 provider. A custom endpoint switches to path
// style addressing as used by most S3 compatible services.
func NewS3Provider(cfg S3Config, log *slog.Logger) (*S3Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: missing S3 bucket", interfaces.ErrInvalidLocationURI)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg := aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		log.Warn("No S3 credentials provided - falling back to the default credential chain",
			slog.String("bucket", cfg.Bucket))
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	client := s3.New(sess)

	return &S3Provider{
		providerInfo: providerInfo{
			name:    fmt.Sprintf("s3-%s", cfg.Bucket),
			schemes: S3Schemes,
		},
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		acl:      cfg.ACL,
		log:      log,
	}, nil
}

// Get returns the object stored at rawURL converted to encoding.
func (p *S3Provider) Get(ctx context.Context, rawURL string, encoding string) ([]byte, error) {
	body, err := p.GetStream(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return Decode(data, encoding)
}

// Post uploads data in a single request.
func (p *S3Provider) Post(ctx context.Context, data []byte, opts interfaces.WriteOptions) (string, error) {
	start := time.Now()
	key := ObjectKey(p.prefix, opts)

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if p.acl != "" {
		input.ACL = aws.String(p.acl)
	}

	if _, err := p.client.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}

	p.log.Debug("Stored content in S3",
		slog.String("bucket", p.bucket),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return p.objectURL(key), nil
}

func (p *S3Provider) GetStream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, key, err := s3Location(rawURL)
	if err != nil {
		return nil, err
	}

	result, err := p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, rawURL)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return result.Body, nil
}

// PostStream starts a managed upload fed by the returned sink.
func (p *S3Provider) PostStream(ctx context.Context, opts interfaces.WriteOptions) (interfaces.Sink, error) {
	key := ObjectKey(p.prefix, opts)

	return newPipeSink(func(r io.Reader) (string, error) {
		input := &s3manager.UploadInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   r,
		}
		if p.acl != "" {
			input.ACL = aws.String(p.acl)
		}

		out, err := p.uploader.UploadWithContext(ctx, input)
		if err != nil {
			return "", fmt.Errorf("failed to upload object to S3: %w", err)
		}

		p.log.Debug("Uploaded content to S3",
			slog.String("bucket", p.bucket),
			slog.String("key", key),
			slog.String("location", out.Location))

		return p.objectURL(key), nil
	}), nil
}

func (p *S3Provider) Delete(ctx context.Context, rawURL string) error {
	bucket, key, err := s3Location(rawURL)
	if err != nil {
		return err
	}

	_, err = p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func (p *S3Provider) objectURL(key string) string {
	return (&url.URL{Scheme: S3Schemes[0], Host: p.bucket, Path: "/" + key}).String()
}

// s3Location splits s3://bucket/key into its bucket and key.
func s3Location(rawURL string) (string, string, error) {
	u, err := parseObjectURL(rawURL, S3Schemes...)
	if err != nil {
		return "", "", err
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: expected s3://bucket/key, got %q", interfaces.ErrInvalidURL, rawURL)
	}
	return u.Host, key, nil
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
