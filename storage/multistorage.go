package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/danielkbx/multi-storage/interfaces"
	"github.com/danielkbx/multi-storage/metrics"
	"golang.org/x/crypto/blake2b"
)

const (
	// minURLLength is the shortest URL accepted from a provider, "a://b".
	minURLLength = 5

	defaultSinkQueueSize = 16
)

var errNilSink = errors.New("provider returned no sink")

// Config configures a MultiStorage coordinator.
type Config struct {
	// Log receives the coordinator diagnostics. Defaults to slog.Default().
	Log *slog.Logger

	// Metrics records provider activity. May be nil.
	Metrics *metrics.Recorder

	// RollbackPartialWrites deletes the successful writes of a fan-out that
	// failed on at least one other provider.
	RollbackPartialWrites bool

	// SinkQueueSize bounds the number of chunks buffered per provider during a
	// streamed write. Defaults to 16.
	SinkQueueSize int
}

// MultiStorage routes reads and deletes to the provider owning a URL scheme and
// fans writes out to every admitted provider.
//
// Providers may be admitted at any time. A write works on the provider set
// that was admitted when it started.
type MultiStorage struct {
	mu      sync.RWMutex
	entries []ProviderEntry

	log       *slog.Logger
	metrics   *metrics.Recorder
	rollback  bool
	queueSize int
}

// NewMultiStorage creates a coordinator without providers. cfg may be nil.
func NewMultiStorage(cfg *Config) *MultiStorage {
	if cfg == nil {
		cfg = &Config{}
	}

	logger := cfg.Log
	if logger == nil {
		logger = slog.Default()
	}

	queueSize := cfg.SinkQueueSize
	if queueSize <= 0 {
		queueSize = defaultSinkQueueSize
	}

	return &MultiStorage{
		log:       logger,
		metrics:   cfg.Metrics,
		rollback:  cfg.RollbackPartialWrites,
		queueSize: queueSize,
	}
}

// Get returns the content stored at rawURL converted to encoding ("utf-8" when
// empty). Providers without a scalar read are read through their stream.
func (m *MultiStorage) Get(ctx context.Context, rawURL string, encoding string) ([]byte, error) {
	if encoding == "" {
		encoding = interfaces.DefaultEncoding
	}

	entry, err := m.ResolveProvider(rawURL)
	if err != nil {
		return nil, err
	}

	if reader, ok := entry.Provider.(interfaces.ScalarReader); ok {
		data, err := reader.Get(ctx, rawURL, encoding)
		if err != nil {
			return nil, m.providerFailure(entry, "get", err)
		}
		m.metrics.BytesRead(entry.Name(), int64(len(data)))
		return data, nil
	}

	stream, err := m.GetStream(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}

	return Decode(data, encoding)
}

// GetStream opens the content stored at rawURL.
func (m *MultiStorage) GetStream(ctx context.Context, rawURL string) (*ReadStream, error) {
	entry, err := m.ResolveProvider(rawURL)
	if err != nil {
		return nil, err
	}

	rc, err := entry.Provider.GetStream(ctx, rawURL)
	if err != nil {
		return nil, m.providerFailure(entry, "get_stream", err)
	}

	return newReadStream(m, entry, rawURL, rc), nil
}

// Delete removes the content stored at rawURL from the provider owning its scheme.
func (m *MultiStorage) Delete(ctx context.Context, rawURL string) error {
	entry, err := m.ResolveProvider(rawURL)
	if err != nil {
		return err
	}

	if err := entry.Provider.Delete(ctx, rawURL); err != nil {
		return m.providerFailure(entry, "delete", err)
	}

	m.log.Info("Deleted content",
		slog.String("provider", entry.Name()),
		slog.String("url", rawURL))
	return nil
}

// Post writes data to every provider concurrently and waits for all of them.
// The write fails if any provider fails; successful writes on the other
// providers are kept unless RollbackPartialWrites is set.
func (m *MultiStorage) Post(ctx context.Context, data []byte, opts interfaces.WriteOptions) (*interfaces.WriteResult, error) {
	start := time.Now()
	opts = NormalizeOptions(opts)

	entries := m.Providers()
	if len(entries) == 0 {
		return nil, interfaces.ErrNoProviders
	}

	urls := make([]string, len(entries))
	errs := make([]error, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		i, entry := i, entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			urls[i], errs[i] = m.postTo(ctx, entry, data, opts)
		}()
	}
	wg.Wait()

	digest := blake2b.Sum256(data)
	result, err := m.settle(ctx, entries, urls, errs, int64(len(data)), hex.EncodeToString(digest[:]))
	m.metrics.WriteSettled("post", start, err)
	return result, err
}

func (m *MultiStorage) postTo(ctx context.Context, entry ProviderEntry, data []byte, opts interfaces.WriteOptions) (string, error) {
	var url string
	var err error

	if writer, ok := entry.Provider.(interfaces.ScalarWriter); ok {
		url, err = writer.Post(ctx, data, opts)
	} else {
		url, err = writeThroughSink(ctx, entry.Provider, data, opts)
	}
	if err == nil {
		err = checkURL(url)
	}
	if err != nil {
		return "", m.providerFailure(entry, "post", err)
	}

	m.metrics.BytesWritten(entry.Name(), int64(len(data)))
	return url, nil
}

func writeThroughSink(ctx context.Context, p interfaces.Provider, data []byte, opts interfaces.WriteOptions) (string, error) {
	sink, err := p.PostStream(ctx, opts)
	if err != nil {
		return "", err
	}
	if sink == nil {
		return "", errNilSink
	}

	if _, err := sink.Write(data); err != nil {
		sink.Abort(err)
		return "", err
	}
	return sink.Commit()
}

// settle turns the per-provider outcomes of a fan-out into its result.
func (m *MultiStorage) settle(ctx context.Context, entries []ProviderEntry, urls []string, errs []error, n int64, digest string) (*interfaces.WriteResult, error) {
	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}

	if len(failed) == 0 {
		m.log.Info("Successfully stored content",
			slog.Int("providers", len(entries)),
			slog.Int64("bytes", n),
			slog.String("digest", digest))
		return &interfaces.WriteResult{URLs: urls, Bytes: n, Digest: digest}, nil
	}

	m.log.Error("Failed to store content",
		slog.Int("providers", len(entries)),
		slog.Int("failed_providers", len(failed)))

	if m.rollback {
		m.rollbackWrites(ctx, entries, urls, errs)
	}

	return nil, &interfaces.AggregateWriteError{Errors: failed}
}

func (m *MultiStorage) rollbackWrites(ctx context.Context, entries []ProviderEntry, urls []string, errs []error) {
	ctx = context.WithoutCancel(ctx)
	for i, entry := range entries {
		if errs[i] != nil || urls[i] == "" {
			continue
		}
		if err := entry.Provider.Delete(ctx, urls[i]); err != nil {
			m.log.Warn("Failed to roll back partial write",
				slog.String("provider", entry.Name()),
				slog.String("url", urls[i]),
				"err", err)
			continue
		}
		m.log.Debug("Rolled back partial write",
			slog.String("provider", entry.Name()),
			slog.String("url", urls[i]))
	}
}

// providerFailure logs a failed provider operation and wraps err into a *ProviderError.
func (m *MultiStorage) providerFailure(entry ProviderEntry, op string, err error) error {
	var perr *interfaces.ProviderError
	if errors.As(err, &perr) && perr.Provider == entry.Name() {
		return err
	}

	m.log.Warn("Provider operation failed",
		slog.String("provider", entry.Name()),
		slog.String("op", op),
		"err", err)
	m.metrics.ProviderError(entry.Name(), op)

	return &interfaces.ProviderError{Provider: entry.Name(), Op: op, Err: err}
}

// checkURL rejects URLs a provider cannot plausibly be read back from.
func checkURL(url string) error {
	if len(url) < minURLLength {
		return fmt.Errorf("implausible url %q", url)
	}
	if _, err := interfaces.Scheme(url); err != nil {
		return fmt.Errorf("implausible url %q: %w", url, err)
	}
	return nil
}
