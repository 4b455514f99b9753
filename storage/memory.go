package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/danielkbx/multi-storage/interfaces"
)

// MemorySchemes are the URL schemes of the memory provider.
var MemorySchemes = []string{"mem"}

// MemoryProvider keeps objects in a map. Content is lost when the process
// exits, so it is meant for tests and as a cache tier.
type MemoryProvider struct {
	providerInfo

	mu      sync.RWMutex
	objects map[string][]byte
	log     *slog.Logger
}

// NewMemoryProvider creates an empty memory provider.
func NewMemoryProvider(name string, log *slog.Logger) *MemoryProvider {
	if log == nil {
		log = slog.Default()
	}
	if name == "" {
		name = "memory"
	}
	return &MemoryProvider{
		providerInfo: providerInfo{name: name, schemes: MemorySchemes},
		objects:      make(map[string][]byte),
		log:          log,
	}
}

// Get returns the object stored at rawURL converted to encoding.
func (p *MemoryProvider) Get(_ context.Context, rawURL string, encoding string) ([]byte, error) {
	data, err := p.lookup(rawURL)
	if err != nil {
		return nil, err
	}
	return Decode(data, encoding)
}

// Post stores data and returns its URL.
func (p *MemoryProvider) Post(_ context.Context, data []byte, opts interfaces.WriteOptions) (string, error) {
	return p.store(ObjectKey("", opts), bytes.Clone(data))
}

func (p *MemoryProvider) GetStream(_ context.Context, rawURL string) (io.ReadCloser, error) {
	data, err := p.lookup(rawURL)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *MemoryProvider) PostStream(_ context.Context, opts interfaces.WriteOptions) (interfaces.Sink, error) {
	key := ObjectKey("", opts)
	return newBufferSink(func(data []byte) (string, error) {
		return p.store(key, bytes.Clone(data))
	}), nil
}

// Delete removes the object stored at rawURL. Deleting a missing object is not an error.
func (p *MemoryProvider) Delete(_ context.Context, rawURL string) error {
	key, err := memoryKey(rawURL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.objects)
}

func (p *MemoryProvider) store(key string, data []byte) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}

	p.mu.Lock()
	p.objects[key] = data
	p.mu.Unlock()

	p.log.Debug("Stored content in memory",
		slog.String("provider", p.name),
		slog.String("key", key),
		slog.Int("size", len(data)))

	return (&url.URL{Scheme: MemorySchemes[0], Path: "/" + key}).String(), nil
}

func (p *MemoryProvider) lookup(rawURL string) ([]byte, error) {
	key, err := memoryKey(rawURL)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, rawURL)
	}
	return data, nil
}

func memoryKey(rawURL string) (string, error) {
	u, err := parseObjectURL(rawURL, MemorySchemes...)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(u.Host+u.Path, "/"), nil
}
