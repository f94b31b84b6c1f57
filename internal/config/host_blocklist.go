package config

import (
	"net/netip"
	"net/url"
	"strings"
)

// HostBlocklist holds hosts, domain suffixes and CIDR ranges that must never be contacted.
type HostBlocklist struct {
	hosts    map[string]struct{}
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// NormalizeHostBlocklist trims, lowercases, and deduplicates host entries.
func NormalizeHostBlocklist(entries []string) []string {
	unique := make(map[string]struct{}, len(entries))
	normalized := make([]string, 0, len(entries))

	for _, raw := range entries {
		entry := normalizeEntry(raw)
		if entry == "" {
			continue
		}
		if _, exists := unique[entry]; exists {
			continue
		}
		unique[entry] = struct{}{}
		normalized = append(normalized, entry)
	}

	return normalized
}

func NewHostBlocklist(entries []string) HostBlocklist {
	blocklist := HostBlocklist{
		hosts: make(map[string]struct{}),
		addrs: make(map[netip.Addr]struct{}),
	}

	for _, entry := range NormalizeHostBlocklist(entries) {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.IsSingleIP() {
				blocklist.addrs[prefix.Addr()] = struct{}{}
				continue
			}
			blocklist.prefixes = append(blocklist.prefixes, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			blocklist.addrs[addr] = struct{}{}
			continue
		}
		blocklist.hosts[entry] = struct{}{}
	}

	return blocklist
}

func (b HostBlocklist) Len() int {
	return len(b.hosts) + len(b.addrs) + len(b.prefixes)
}

// Blocks reports whether the given URL, host or IP matches the blocklist.
func (b HostBlocklist) Blocks(rawURLOrHost string) bool {
	if b.Len() == 0 {
		return false
	}

	host := normalizeHostname(rawURLOrHost)
	if host == "" {
		return false
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if _, ok := b.addrs[addr]; ok {
			return true
		}
		for _, prefix := range b.prefixes {
			if prefix.Contains(addr) {
				return true
			}
		}
		return false
	}

	return isHostBlocked(host, b.hosts)
}

func normalizeEntry(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if prefix, err := netip.ParsePrefix(trimmed); err == nil {
		return prefix.Masked().String()
	}
	return normalizeHostname(trimmed)
}

func normalizeHostname(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if addr, err := netip.ParseAddr(strings.Trim(trimmed, "[]")); err == nil {
		return addr.Unmap().String()
	}

	// Allow bare hostnames by prefixing a scheme for URL parsing.
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	return strings.Trim(host, ".")
}

// isHostBlocked matches host and each of its parent domains against the set.
func isHostBlocked(host string, blockedSet map[string]struct{}) bool {
	if host == "" || len(blockedSet) == 0 {
		return false
	}

	for candidate := host; candidate != ""; {
		if _, ok := blockedSet[candidate]; ok {
			return true
		}
		_, parent, found := strings.Cut(candidate, ".")
		if !found {
			return false
		}
		candidate = parent
	}

	return false
}
