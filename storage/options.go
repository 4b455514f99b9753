package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/danielkbx/multi-storage/interfaces"
	"github.com/google/uuid"
)

// NormalizeOptions fills in write option defaults. An empty name becomes a
// random identifier and the first "%" of a name is replaced by one, so callers
// can keep an extension: "upload-%.png" becomes "upload-<uuid>.png".
func NormalizeOptions(opts interfaces.WriteOptions) interfaces.WriteOptions {
	if opts.Encoding == "" {
		opts.Encoding = interfaces.DefaultEncoding
	}

	switch {
	case opts.Name == "":
		opts.Name = uuid.NewString()
	case strings.Contains(opts.Name, "%"):
		opts.Name = strings.Replace(opts.Name, "%", uuid.NewString(), 1)
	}

	return opts
}

// ObjectKey joins prefix and the path and name of opts into a slash separated
// key without a leading slash. Dot segments are resolved and cannot climb above
// prefix.
func ObjectKey(prefix string, opts interfaces.WriteOptions) string {
	return strings.TrimPrefix(path.Join("/", prefix, path.Join("/", opts.Path, opts.Name)), "/")
}

// parseObjectURL parses rawURL and checks that it carries one of the provider schemes.
func parseObjectURL(rawURL string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidURL, err)
	}
	for _, scheme := range schemes {
		if strings.EqualFold(u.Scheme, scheme) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %q not handled by this provider", interfaces.ErrInvalidScheme, u.Scheme)
}
