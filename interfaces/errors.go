package interfaces

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrInvalidURL is returned when a URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidScheme is returned when a URL has no scheme.
	ErrInvalidScheme = errors.New("invalid url scheme")

	// ErrNoProviderForScheme is returned when no registered provider handles a scheme.
	ErrNoProviderForScheme = errors.New("no provider for scheme")

	// ErrNoProviders is returned when a write is attempted on a coordinator without providers.
	ErrNoProviders = errors.New("no providers registered")

	// ErrSinkCreationFailed is returned when a provider cannot open a sink for a streamed write.
	ErrSinkCreationFailed = errors.New("sink creation failed")

	// ErrUnsupportedEncoding is returned when a read requests an unknown encoding.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")

	// ErrContentNotFound is returned when requested content cannot be found in a provider.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidLocationURI is returned when a provider location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid provider location URI")
)

// ProviderError reports the failure of a single provider operation.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AggregateWriteError bundles the per-provider errors of a failed fan-out write.
// Writes that succeeded on other providers are not undone unless the coordinator
// was configured to roll them back.
type AggregateWriteError struct {
	Errors []error
}

func (e *AggregateWriteError) Error() string {
	return "write failed: " + multierror.ListFormatFunc(e.Errors)
}

func (e *AggregateWriteError) Unwrap() []error {
	return e.Errors
}

// Scheme extracts the lower-cased scheme of rawURL, the text before its first colon.
func Scheme(rawURL string) (string, error) {
	scheme, _, found := strings.Cut(rawURL, ":")
	if !found || len(scheme) < 1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidScheme, rawURL)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return strings.ToLower(scheme), nil
}
