package storage

import (
	"fmt"
	"log/slog"

	"github.com/danielkbx/multi-storage/interfaces"
)

// ResolveProvider returns the highest priority provider handling the scheme of rawURL.
func (m *MultiStorage) ResolveProvider(rawURL string) (ProviderEntry, error) {
	scheme, err := interfaces.Scheme(rawURL)
	if err != nil {
		m.log.Error("Failed to resolve provider", slog.String("url", rawURL), "err", err)
		return ProviderEntry{}, err
	}

	candidates := m.ProvidersSupporting(scheme)
	if len(candidates) == 0 {
		err := fmt.Errorf("%w: %s", interfaces.ErrNoProviderForScheme, scheme)
		m.log.Error("Failed to resolve provider", slog.String("url", rawURL), "err", err)
		return ProviderEntry{}, err
	}

	return candidates[0], nil
}
