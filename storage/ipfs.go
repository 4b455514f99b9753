package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/danielkbx/multi-storage/interfaces"
	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSSchemes are the URL schemes of the IPFS provider.
var IPFSSchemes = []string{"ipfs"}

// IPFSProvider stores content on an IPFS node through its HTTP API.
// Content is addressed by CID, so the write options only name the content in logs.
// Written content is pinned and deleting it unpins it.
type IPFSProvider struct {
	providerInfo

	shell *shell.Shell
	api   string
	log   *slog.Logger
}

// NewIPFSProvider creates an IPFS provider talking to the node API at apiAddr
// ("host:port" or a multiaddr).
func NewIPFSProvider(apiAddr string, timeout time.Duration, log *slog.Logger) *IPFSProvider {
	if log == nil {
		log = slog.Default()
	}

	sh := shell.NewShell(apiAddr)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSProvider{
		providerInfo: providerInfo{
			name:    fmt.Sprintf("ipfs-%s", strings.NewReplacer("http://", "", "https://", "", ":", "-").Replace(apiAddr)),
			schemes: IPFSSchemes,
		},
		shell: sh,
		api:   apiAddr,
		log:   log,
	}
}

func (p *IPFSProvider) GetStream(_ context.Context, rawURL string) (io.ReadCloser, error) {
	cid, err := ipfsCID(rawURL)
	if err != nil {
		return nil, err
	}

	reader, err := p.shell.Cat("/ipfs/" + cid)
	if err != nil {
		if isIPFSNotFound(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, rawURL)
		}
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	return reader, nil
}

// PostStream adds and pins the sink content.
func (p *IPFSProvider) PostStream(_ context.Context, opts interfaces.WriteOptions) (interfaces.Sink, error) {
	return newPipeSink(func(r io.Reader) (string, error) {
		start := time.Now()
		cid, err := p.shell.Add(r, shell.Pin(true))
		if err != nil {
			return "", fmt.Errorf("failed to add data to IPFS: %w", err)
		}

		p.log.Debug("Stored content in IPFS",
			slog.String("cid", cid),
			slog.String("name", opts.Name),
			slog.Duration("duration", time.Since(start)))

		return IPFSSchemes[0] + "://" + cid, nil
	}), nil
}

// Delete unpins the content. Unpinned content stays reachable until the node
// collects garbage.
func (p *IPFSProvider) Delete(_ context.Context, rawURL string) error {
	cid, err := ipfsCID(rawURL)
	if err != nil {
		return err
	}

	if err := p.shell.Unpin("/ipfs/" + cid); err != nil {
		if strings.Contains(err.Error(), "not pinned") {
			return nil
		}
		return fmt.Errorf("failed to unpin IPFS content: %w", err)
	}
	return nil
}

func ipfsCID(rawURL string) (string, error) {
	u, err := parseObjectURL(rawURL, IPFSSchemes...)
	if err != nil {
		return "", err
	}
	cid := strings.Trim(u.Host+u.Path, "/")
	if cid == "" {
		return "", fmt.Errorf("%w: expected ipfs://<cid>, got %q", interfaces.ErrInvalidURL, rawURL)
	}
	return cid, nil
}

func isIPFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no link named") || strings.Contains(msg, "not found")
}
