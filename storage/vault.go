package storage

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielkbx/multi-storage/interfaces"
	"github.com/hashicorp/vault/api"
)

// VaultSchemes are the URL schemes of the Vault provider.
var VaultSchemes = []string{"vault"}

// VaultConfig configures a Vault provider.
type VaultConfig struct {
	// Address of the Vault server, e.g. https://vault.example.com:8200.
	Address string

	// Mount is the KV v2 mount path, "secret" when empty.
	Mount string

	// Prefix is prepended to every object path within the mount.
	Prefix string

	// Token authenticates the client. Optional when ClientCert is set.
	Token string

	// ClientCert enables TLS client certificate authentication.
	ClientCert *tls.Certificate
}

// VaultProvider stores content in a Vault KV v2 secrets engine. Objects are
// kept base64-encoded under the "content" key of a secret, so streamed writes
// are buffered and written on commit.
type VaultProvider struct {
	providerInfo

	client *api.Client
	mount  string
	prefix string
	log    *slog.Logger
}

// NewVaultProvider creates a Vault provider.
func NewVaultProvider(cfg VaultConfig, log *slog.Logger) (*VaultProvider, error) {
	if log == nil {
		log = slog.Default()
	}

	config := api.DefaultConfig()
	config.Address = cfg.Address
	if cfg.ClientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{*cfg.ClientCert},
				},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = "secret"
	}

	return &VaultProvider{
		providerInfo: providerInfo{
			name:    fmt.Sprintf("vault-%s", mount),
			schemes: VaultSchemes,
		},
		client: client,
		mount:  mount,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}, nil
}

// Get returns the content stored at rawURL converted to encoding.
func (p *VaultProvider) Get(ctx context.Context, rawURL string, encoding string) ([]byte, error) {
	start := time.Now()
	mount, secretPath, err := vaultLocation(rawURL)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/data/%s", mount, secretPath)
	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, rawURL)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// KV v2 reports deleted versions with empty data.
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, rawURL)
	}
	content, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data")
	}

	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid content format in Vault data: %w", err)
	}

	p.log.Debug("Fetched content from Vault",
		slog.String("path", path),
		slog.Int("size", len(raw)),
		slog.Duration("duration", time.Since(start)))

	return Decode(raw, encoding)
}

// Post writes data as a new version of the secret named by opts.
func (p *VaultProvider) Post(ctx context.Context, data []byte, opts interfaces.WriteOptions) (string, error) {
	secretPath := ObjectKey(p.prefix, opts)
	path := fmt.Sprintf("%s/data/%s", p.mount, secretPath)

	_, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": map[string]interface{}{
			"content":  base64.StdEncoding.EncodeToString(data),
			"encoding": opts.Encoding,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to write to Vault: %w", err)
	}

	p.log.Debug("Stored content in Vault",
		slog.String("path", path),
		slog.Int("size", len(data)))

	return (&url.URL{Scheme: VaultSchemes[0], Host: p.mount, Path: "/" + secretPath}).String(), nil
}

func (p *VaultProvider) GetStream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	data, err := p.Get(ctx, rawURL, interfaces.BinaryEncoding)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (p *VaultProvider) PostStream(ctx context.Context, opts interfaces.WriteOptions) (interfaces.Sink, error) {
	return newBufferSink(func(data []byte) (string, error) {
		return p.Post(ctx, data, opts)
	}), nil
}

// Delete removes every version of the secret stored at rawURL.
func (p *VaultProvider) Delete(ctx context.Context, rawURL string) error {
	mount, secretPath, err := vaultLocation(rawURL)
	if err != nil {
		return err
	}

	if _, err := p.client.Logical().DeleteWithContext(ctx, fmt.Sprintf("%s/metadata/%s", mount, secretPath)); err != nil {
		return fmt.Errorf("failed to delete from Vault: %w", err)
	}
	return nil
}

// vaultLocation splits vault://mount/path into the mount and the secret path.
func vaultLocation(rawURL string) (string, string, error) {
	u, err := parseObjectURL(rawURL, VaultSchemes...)
	if err != nil {
		return "", "", err
	}
	secretPath := strings.Trim(u.Path, "/")
	if u.Host == "" || secretPath == "" {
		return "", "", fmt.Errorf("%w: expected vault://mount/path, got %q", interfaces.ErrInvalidURL, rawURL)
	}
	return u.Host, secretPath, nil
}
