package storage

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"

	"github.com/danielkbx/multi-storage/interfaces"
)

// ProviderEntry is an admitted provider and the priority it is ordered by.
type ProviderEntry struct {
	Provider interfaces.Provider
	Priority int

	// Owner is the coordinator the provider was admitted to.
	Owner *MultiStorage

	schemes []string
}

// Name returns the provider name.
func (e ProviderEntry) Name() string {
	return e.Provider.Name()
}

// Schemes returns the lower-cased schemes of the provider.
func (e ProviderEntry) Schemes() []string {
	return slices.Clone(e.schemes)
}

// Supports reports whether the provider handles scheme, ignoring case.
func (e ProviderEntry) Supports(scheme string) bool {
	return slices.Contains(e.schemes, strings.ToLower(scheme))
}

// checkProvider reports whether p can be admitted, logging the missing capability otherwise.
func checkProvider(log *slog.Logger, p interfaces.Provider) bool {
	if p == nil {
		log.Warn("Rejected provider: provider is nil")
		return false
	}
	if p.Name() == "" {
		log.Warn("Rejected provider: missing name")
		return false
	}
	if len(p.Schemes()) == 0 {
		log.Warn("Rejected provider: missing schemes", slog.String("provider", p.Name()))
		return false
	}
	return true
}

// AddProvider admits providers and returns how many passed the capability check.
//
// A provider without a declared priority gets the registry size plus one, so
// later admissions are preferred over earlier ones. The registry is kept sorted
// by descending priority; equal priorities keep their admission order.
func (m *MultiStorage) AddProvider(providers ...interfaces.Provider) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	admitted := 0
	for _, p := range providers {
		if !checkProvider(m.log, p) {
			continue
		}

		priority := 0
		if prioritized, ok := p.(interfaces.Prioritized); ok {
			priority = prioritized.Priority()
		}
		if priority == 0 {
			priority = len(m.entries) + 1
		}

		schemes := make([]string, 0, len(p.Schemes()))
		for _, scheme := range p.Schemes() {
			schemes = append(schemes, strings.ToLower(scheme))
		}

		m.entries = append(m.entries, ProviderEntry{
			Provider: p,
			Priority: priority,
			Owner:    m,
			schemes:  schemes,
		})
		admitted++

		m.log.Info("Added provider",
			slog.String("provider", p.Name()),
			slog.Int("priority", priority),
			slog.String("schemes", strings.Join(schemes, ",")))
	}

	slices.SortStableFunc(m.entries, func(a, b ProviderEntry) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	m.metrics.SetProviders(len(m.entries))

	return admitted
}

// Providers returns the admitted providers ordered by descending priority.
func (m *MultiStorage) Providers() []ProviderEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries)
}

// ProvidersSupporting returns the providers handling scheme, ordered by descending priority.
func (m *MultiStorage) ProvidersSupporting(scheme string) []ProviderEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []ProviderEntry
	for _, entry := range m.entries {
		if entry.Supports(scheme) {
			matches = append(matches, entry)
		}
	}
	return matches
}
