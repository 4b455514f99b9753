package interfaces

import (
	"context"
	"io"
)

// DefaultEncoding is the encoding assumed when a caller does not name one.
const DefaultEncoding = "utf-8"

// BinaryEncoding requests raw bytes from a read, without any conversion.
const BinaryEncoding = "binary"

// WriteOptions describe where and how a payload is written.
type WriteOptions struct {
	// Name of the stored object. A "%" is replaced by a unique identifier.
	Name string `json:"name" yaml:"name"`

	// Path is a provider-relative directory or key prefix.
	Path string `json:"path" yaml:"path"`

	// Encoding of the payload, informational for providers.
	Encoding string `json:"encoding" yaml:"encoding"`
}

// WriteResult is the outcome of a successful fan-out write.
type WriteResult struct {
	// URLs holds one URL per provider, in registry order.
	URLs []string `json:"urls"`

	// Bytes is the number of bytes written to every provider.
	Bytes int64 `json:"bytes"`

	// Digest is the hex-encoded blake2b-256 digest of the written bytes.
	Digest string `json:"digest"`
}

// Sink receives the bytes of a single write operation.
type Sink interface {
	io.Writer

	// Commit ends the input and waits for the provider to finish. It returns the
	// URL under which the written content can be read back.
	Commit() (string, error)

	// Abort discards the write. It is safe to call after a failed Write.
	Abort(err error)
}

// Provider is a storage backend for one or more URL schemes.
type Provider interface {
	// Name returns identifier for logging.
	Name() string

	// Schemes returns the URL schemes handled by this provider.
	Schemes() []string

	// GetStream opens the content stored at url.
	GetStream(ctx context.Context, url string) (io.ReadCloser, error)

	// PostStream opens a sink for a new object described by opts.
	PostStream(ctx context.Context, opts WriteOptions) (Sink, error)

	// Delete removes the content stored at url.
	Delete(ctx context.Context, url string) error
}

// ScalarReader is implemented by providers that can read a whole object in one call.
type ScalarReader interface {
	Get(ctx context.Context, url string, encoding string) ([]byte, error)
}

// ScalarWriter is implemented by providers that can write a whole object in one call.
type ScalarWriter interface {
	Post(ctx context.Context, data []byte, opts WriteOptions) (string, error)
}

// Prioritized is implemented by providers that declare their own priority.
// Zero means no priority was declared.
type Prioritized interface {
	Priority() int
}
