package storage

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danielkbx/multi-storage/interfaces"
)

const defaultIPFSTimeout = 30 * time.Second

// Location describes where a provider stores its content.
type Location struct {
	// URI selects the provider type by scheme, e.g. "s3://bucket/prefix?region=eu-west-1".
	URI string `yaml:"location" json:"location"`

	// Priority overrides the priority given in the URI. Zero keeps it.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`
}

type configurableProvider interface {
	interfaces.Provider
	SetPriority(priority int)
	SetName(name string)
}

// ProviderFactory creates providers from location URIs.
type ProviderFactory struct {
	log        *slog.Logger
	clientCert *tls.Certificate
}

// NewProviderFactory creates a factory logging to logger.
func NewProviderFactory(logger *slog.Logger) *ProviderFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderFactory{log: logger}
}

// WithTLSAuth returns a copy of the factory that authenticates to Vault with cert.
func (f *ProviderFactory) WithTLSAuth(cert tls.Certificate) *ProviderFactory {
	return &ProviderFactory{
		log:        f.log,
		clientCert: &cert,
	}
}

// ProviderFor creates a provider from a location.
//
// Supported URIs:
//   - mem://[name]
//   - file:///absolute/path or file://./relative/path
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket[/prefix][?region=us-east-1&endpoint=http://host:9000&acl=public-read]
//   - minio://[ACCESS_KEY:SECRET_KEY@]host:port/bucket[/prefix][?tls=true&region=...]
//   - ipfs://host:port[?timeout=30s]
//   - vault://[token@]host:port[/mount[/prefix]][?tls=true]
//
// Every URI accepts "priority" and "name" query parameters.
func (f *ProviderFactory) ProviderFor(loc Location) (interfaces.Provider, error) {
	u, err := url.Parse(loc.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	var p configurableProvider
	switch strings.ToLower(u.Scheme) {
	case "mem":
		p, err = f.createMemoryProvider(u)
	case "file":
		p, err = f.createFileProvider(u)
	case "s3":
		p, err = f.createS3Provider(u)
	case "minio":
		p, err = f.createMinioProvider(u)
	case "ipfs":
		p, err = f.createIPFSProvider(u)
	case "vault":
		p, err = f.createVaultProvider(u)
	default:
		return nil, fmt.Errorf("%w: unsupported provider scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	query := u.Query()
	if name := query.Get("name"); name != "" {
		p.SetName(name)
	}

	priority := loc.Priority
	if priority == 0 && query.Has("priority") {
		priority, err = strconv.Atoi(query.Get("priority"))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid priority %q", interfaces.ErrInvalidLocationURI, query.Get("priority"))
		}
	}
	p.SetPriority(priority)

	return p, nil
}

// ProvidersFor creates a provider per location, skipping the ones that fail.
func (f *ProviderFactory) ProvidersFor(locations []Location) []interfaces.Provider {
	providers := make([]interfaces.Provider, 0, len(locations))
	for _, loc := range locations {
		p, err := f.ProviderFor(loc)
		if err != nil {
			f.log.Warn("Failed to create provider",
				"err", err,
				slog.String("location", redactLocation(loc.URI)))
			continue
		}
		providers = append(providers, p)
	}
	return providers
}

// CreateMultiStorage creates a coordinator with a provider for every valid location.
// It fails when no provider could be created.
func (f *ProviderFactory) CreateMultiStorage(locations []Location, cfg *Config) (*MultiStorage, error) {
	providers := f.ProvidersFor(locations)
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no valid provider locations", interfaces.ErrNoProviders)
	}

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Log == nil {
		cfg.Log = f.log
	}

	ms := NewMultiStorage(cfg)
	ms.AddProvider(providers...)
	return ms, nil
}

func (f *ProviderFactory) createMemoryProvider(u *url.URL) (configurableProvider, error) {
	return NewMemoryProvider(u.Host, f.log), nil
}

func (f *ProviderFactory) createFileProvider(u *url.URL) (configurableProvider, error) {
	f.log.Debug("Creating file provider", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %q", interfaces.ErrInvalidLocationURI, u.String())
	}

	return NewFileProvider(filepath.FromSlash(path), f.log)
}

func (f *ProviderFactory) createS3Provider(u *url.URL) (configurableProvider, error) {
	f.log.Debug("Creating S3 provider", slog.String("bucket", u.Host))

	query := u.Query()
	cfg := S3Config{
		Bucket:   u.Host,
		Prefix:   strings.TrimPrefix(u.Path, "/"),
		Region:   query.Get("region"),
		Endpoint: query.Get("endpoint"),
		ACL:      query.Get("acl"),
	}
	if u.User != nil {
		cfg.AccessKey = u.User.Username()
		cfg.SecretKey, _ = u.User.Password()
	}

	return NewS3Provider(cfg, f.log)
}

func (f *ProviderFactory) createMinioProvider(u *url.URL) (configurableProvider, error) {
	f.log.Debug("Creating MinIO provider", slog.String("endpoint", u.Host))

	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	query := u.Query()
	cfg := MinioConfig{
		Endpoint: u.Host,
		Bucket:   bucket,
		Prefix:   prefix,
		Region:   query.Get("region"),
		UseTLS:   query.Get("tls") == "true",
	}
	if u.User != nil {
		cfg.AccessKey = u.User.Username()
		cfg.SecretKey, _ = u.User.Password()
	}

	return NewMinioProvider(cfg, f.log)
}

func (f *ProviderFactory) createIPFSProvider(u *url.URL) (configurableProvider, error) {
	f.log.Debug("Creating IPFS provider", slog.String("uri", u.String()))

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing IPFS host in %q", interfaces.ErrInvalidLocationURI, u.String())
	}
	port := u.Port()
	if port == "" {
		port = "5001"
	}

	timeout := defaultIPFSTimeout
	if raw := u.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid IPFS timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = d
	}

	return NewIPFSProvider(host+":"+port, timeout, f.log), nil
}

func (f *ProviderFactory) createVaultProvider(u *url.URL) (configurableProvider, error) {
	f.log.Debug("Creating Vault provider", slog.String("address", u.Host))

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault address", interfaces.ErrInvalidLocationURI)
	}

	scheme := "http"
	if u.Query().Get("tls") == "true" || f.clientCert != nil {
		scheme = "https"
	}

	mount, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	cfg := VaultConfig{
		Address:    scheme + "://" + u.Host,
		Mount:      mount,
		Prefix:     prefix,
		ClientCert: f.clientCert,
	}
	if u.User != nil {
		cfg.Token = u.User.Username()
	}

	return NewVaultProvider(cfg, f.log)
}

// redactLocation hides credentials embedded in a location URI.
func redactLocation(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<invalid>"
	}
	if u.User != nil {
		u.User = url.User("xxxxx")
	}
	return u.String()
}
