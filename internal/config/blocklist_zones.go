package config

import (
	"net"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultLookupTimeout = 10 * time.Second
	defaultLookupWorkers = 8
)

// lookupSnapshot holds the derived lookup settings consumed by the resolver pipeline.
type lookupSnapshot struct {
	zones     []string
	resolvers []string
	timeout   time.Duration
	workers   int
	socks5    string
}

var activeLookup atomic.Value

func init() {
	activeLookup.Store(lookupSnapshot{
		timeout: defaultLookupTimeout,
		workers: defaultLookupWorkers,
	})
}

// NormalizeBlocklistZones trims, lowercases, and deduplicates DNSBL zone entries.
func NormalizeBlocklistZones(entries []string) []string {
	unique := make(map[string]struct{}, len(entries))
	normalized := make([]string, 0, len(entries))

	for _, raw := range entries {
		zone := normalizeZone(raw)
		if zone == "" {
			continue
		}
		if _, exists := unique[zone]; exists {
			continue
		}
		unique[zone] = struct{}{}
		normalized = append(normalized, zone)
	}

	return normalized
}

// NormalizeResolverHosts ensures every resolver entry carries a port, defaulting to 53.
func NormalizeResolverHosts(entries []string) []string {
	unique := make(map[string]struct{}, len(entries))
	normalized := make([]string, 0, len(entries))

	for _, raw := range entries {
		addr := normalizeResolver(raw)
		if addr == "" {
			continue
		}
		if _, exists := unique[addr]; exists {
			continue
		}
		unique[addr] = struct{}{}
		normalized = append(normalized, addr)
	}

	return normalized
}

// updateLookupSnapshot refreshes the derived lookup settings from the persisted config.
func updateLookupSnapshot(cfg Config) {
	timeout := time.Duration(cfg.Lookup.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}

	workers := int(cfg.Lookup.Workers)
	if workers <= 0 {
		workers = defaultLookupWorkers
	}

	activeLookup.Store(lookupSnapshot{
		zones:     NormalizeBlocklistZones(cfg.Lookup.Blocklists),
		resolvers: NormalizeResolverHosts(cfg.Lookup.Resolvers),
		timeout:   timeout,
		workers:   workers,
		socks5:    strings.TrimSpace(cfg.Lookup.Socks5Proxy),
	})
}

// GetLookupZones returns the normalized DNSBL zones to query.
func GetLookupZones() []string {
	return activeLookup.Load().(lookupSnapshot).zones
}

// GetLookupResolvers returns the resolver addresses used for blocklist queries.
func GetLookupResolvers() []string {
	return activeLookup.Load().(lookupSnapshot).resolvers
}

func GetLookupTimeout() time.Duration {
	return activeLookup.Load().(lookupSnapshot).timeout
}

func GetLookupWorkers() int {
	return activeLookup.Load().(lookupSnapshot).workers
}

func GetLookupSocks5Proxy() string {
	return activeLookup.Load().(lookupSnapshot).socks5
}

func normalizeZone(raw string) string {
	zone := strings.ToLower(strings.TrimSpace(raw))
	zone = strings.Trim(zone, ".")
	if zone == "" || strings.ContainsAny(zone, " /") {
		return ""
	}
	return zone
}

func normalizeResolver(raw string) string {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return ""
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	// Bare IPs and hostnames default to the standard DNS port.
	return net.JoinHostPort(addr, "53")
}
