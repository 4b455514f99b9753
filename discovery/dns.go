package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/danielkbx/multi-storage/storage"
	"github.com/miekg/dns"
)

// DefaultServer is the local stub resolver of systemd-resolved.
const DefaultServer = "127.0.0.53:53"

// ErrLookupFailed is returned when the DNS server does not answer a lookup successfully.
var ErrLookupFailed = errors.New("dns lookup failed")

// Resolver looks up provider locations in TXT records.
type Resolver struct {
	server string
	client *dns.Client
	log    *slog.Logger
}

// NewResolver creates a resolver querying server ("host:port"). An empty
// server means DefaultServer.
func NewResolver(server string, log *slog.Logger) *Resolver {
	if server == "" {
		server = DefaultServer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		server: server,
		client: &dns.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

// Locations returns the provider locations published in the TXT records of domain.
// Records that do not describe a location are skipped.
func (r *Resolver) Locations(ctx context.Context, domain string) ([]storage.Location, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeTXT)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLookupFailed, domain, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: %s: %s", ErrLookupFailed, domain, dns.RcodeToString[in.Rcode])
	}

	locations := make([]storage.Location, 0, len(in.Answer))
	for _, answer := range in.Answer {
		txt, ok := answer.(*dns.TXT)
		if !ok {
			continue
		}

		record := strings.Join(txt.Txt, "")
		loc, err := ParseRecord(record)
		if err != nil {
			r.log.Warn("Skipping TXT record", slog.String("domain", domain), "err", err)
			continue
		}
		locations = append(locations, loc)
	}

	r.log.Debug("Resolved provider locations",
		slog.String("domain", domain),
		slog.Int("locations", len(locations)))

	return locations, nil
}

// ParseRecord parses the text of one TXT record into a location.
func ParseRecord(record string) (storage.Location, error) {
	var loc storage.Location
	for _, field := range strings.Fields(record) {
		key, value, _ := strings.Cut(field, "=")
		if strings.Contains(key, "://") {
			if loc.URI != "" {
				return storage.Location{}, fmt.Errorf("record %q names more than one location", record)
			}
			loc.URI = field
			continue
		}

		switch key {
		case "location":
			loc.URI = value
		case "priority":
			priority, err := strconv.Atoi(value)
			if err != nil {
				return storage.Location{}, fmt.Errorf("record %q has invalid priority: %w", record, err)
			}
			loc.Priority = priority
		}
	}

	if loc.URI == "" {
		return storage.Location{}, fmt.Errorf("record %q has no location", record)
	}
	return loc, nil
}
