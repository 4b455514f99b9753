package filehandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielkbx/multi-storage/interfaces"
	"github.com/danielkbx/multi-storage/storage"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("backend unavailable")

// unavailableProvider fails every operation.
type unavailableProvider struct{}

func (unavailableProvider) Name() string      { return "unavailable" }
func (unavailableProvider) Schemes() []string { return []string{"down"} }
func (unavailableProvider) GetStream(context.Context, string) (io.ReadCloser, error) {
	return nil, errUnavailable
}
func (unavailableProvider) PostStream(context.Context, interfaces.WriteOptions) (interfaces.Sink, error) {
	return nil, errUnavailable
}
func (unavailableProvider) Delete(context.Context, string) error { return errUnavailable }

func setupServer(t *testing.T, providers ...interfaces.Provider) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ms := storage.NewMultiStorage(&storage.Config{Log: logger})
	ms.AddProvider(providers...)

	mux := chi.NewRouter()
	NewHandler(ms, logger).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHandler_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	files, err := storage.NewFileProvider(t.TempDir(), logger)
	require.NoError(t, err)
	mem := storage.NewMemoryProvider("mem", logger)
	baseURL := setupServer(t, mem, files)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("stream me "), 10000)
	result, err := Upload(ctx, baseURL, bytes.NewReader(payload), interfaces.WriteOptions{Name: "doc-%.txt", Path: "docs"})
	require.NoError(t, err)
	require.Len(t, result.URLs, 2)
	assert.Equal(t, int64(len(payload)), result.Bytes)
	assert.NotEmpty(t, result.Digest)

	for _, url := range result.URLs {
		var out bytes.Buffer
		n, err := Download(ctx, baseURL, url, "", &out)
		require.NoError(t, err, url)
		assert.Equal(t, int64(len(payload)), n)
		assert.Equal(t, payload, out.Bytes())
	}

	var encoded bytes.Buffer
	_, err = Download(ctx, baseURL, result.URLs[0], "hex", &encoded)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded.String(), "73747265616d"))

	for _, url := range result.URLs {
		require.NoError(t, Remove(ctx, baseURL, url))

		_, err := Download(ctx, baseURL, url, "", io.Discard)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusNotFound, statusErr.Code)
	}
}

func TestHandler_ListProviders(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	low := storage.NewMemoryProvider("low", logger)
	high := storage.NewMemoryProvider("high", logger)
	high.SetPriority(50)
	baseURL := setupServer(t, low, high)

	providers, err := ListProviders(context.Background(), baseURL)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "high", providers[0].Name)
	assert.Equal(t, 50, providers[0].Priority)
	assert.Equal(t, []string{"mem"}, providers[0].Schemes)
	assert.Equal(t, "low", providers[1].Name)
	assert.Equal(t, 1, providers[1].Priority)
}

func TestHandler_StatusCodes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	healthy := setupServer(t, storage.NewMemoryProvider("mem", logger))
	broken := setupServer(t, storage.NewMemoryProvider("mem", logger), unavailableProvider{})
	empty := setupServer(t)

	tests := []struct {
		name    string
		baseURL string
		call    func(baseURL string) error
		code    int
	}{
		{
			name:    "missing scheme",
			baseURL: healthy,
			call: func(baseURL string) error {
				_, err := Download(context.Background(), baseURL, "no-scheme", "", io.Discard)
				return err
			},
			code: http.StatusBadRequest,
		},
		{
			name:    "unknown scheme",
			baseURL: healthy,
			call: func(baseURL string) error {
				_, err := Download(context.Background(), baseURL, "ftp://host/file", "", io.Discard)
				return err
			},
			code: http.StatusNotFound,
		},
		{
			name:    "missing content with encoding",
			baseURL: healthy,
			call: func(baseURL string) error {
				_, err := Download(context.Background(), baseURL, "mem:///x", "klingon", io.Discard)
				return err
			},
			code: http.StatusNotFound,
		},
		{
			name:    "missing url",
			baseURL: healthy,
			call: func(baseURL string) error {
				return Remove(context.Background(), baseURL, "")
			},
			code: http.StatusBadRequest,
		},
		{
			name:    "sink creation failure",
			baseURL: broken,
			call: func(baseURL string) error {
				_, err := Upload(context.Background(), baseURL, strings.NewReader("x"), interfaces.WriteOptions{})
				return err
			},
			code: http.StatusBadGateway,
		},
		{
			name:    "provider failure",
			baseURL: broken,
			call: func(baseURL string) error {
				return Remove(context.Background(), baseURL, "down://x/y")
			},
			code: http.StatusBadGateway,
		},
		{
			name:    "no providers",
			baseURL: empty,
			call: func(baseURL string) error {
				_, err := Upload(context.Background(), baseURL, strings.NewReader("x"), interfaces.WriteOptions{})
				return err
			},
			code: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(tt.baseURL)
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.code, statusErr.Code, statusErr.Message)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("wrap: %w", interfaces.ErrInvalidURL), http.StatusBadRequest},
		{interfaces.ErrUnsupportedEncoding, http.StatusBadRequest},
		{&interfaces.ProviderError{Provider: "p", Op: "get", Err: interfaces.ErrContentNotFound}, http.StatusNotFound},
		{&interfaces.AggregateWriteError{Errors: []error{errUnavailable}}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, statusFor(tt.err), tt.err.Error())
	}
}
