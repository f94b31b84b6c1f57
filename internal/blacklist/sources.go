// Package blacklist downloads published IP blocklists so listed proxies are
// skipped without being contacted.
package blacklist

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const maxResponseBytes = 10 << 20 // 10 MiB safety cap

var ipRegex = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?:/\d{1,2})?\b`)

type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// FetchAll returns the deduplicated IPs and CIDRs of every source. A source
// that cannot be fetched is logged and skipped; only cancellation is returned.
func (f *Fetcher) FetchAll(ctx context.Context, sources []string) ([]string, error) {
	seen := make(map[string]struct{})

	for _, src := range sources {
		entries, err := f.fetch(ctx, src)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			log.Warn("Blocklist fetch failed", "source", src, "error", err)
			continue
		}

		log.Debug("Blocklist fetched", "source", src, "entries", len(entries))
		for _, entry := range entries {
			seen[entry] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for entry := range seen {
		out = append(out, entry)
	}
	slices.Sort(out)
	return out, nil
}

func (f *Fetcher) fetch(ctx context.Context, source string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseEntries(content), nil
}

// parseEntries extracts IPv4 addresses and CIDR ranges from a list in any of
// the usual formats (plain, netset, comments after the address).
func parseEntries(payload []byte) []string {
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 1024), 1024*1024)

	var entries []string
	for scanner.Scan() {
		line := scanner.Bytes()
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && (trimmed[0] == '#' || trimmed[0] == ';') {
			continue
		}
		for _, match := range ipRegex.FindAll(line, -1) {
			if entry := parseCIDROrIP(string(match)); entry != "" {
				entries = append(entries, entry)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warn("Blocklist scanner warning", "error", err)
	}

	return entries
}

func normalizeIPv4(raw string) string {
	parsed := net.ParseIP(raw)
	if parsed == nil {
		return ""
	}
	v4 := parsed.To4()
	if v4 == nil {
		return ""
	}
	return v4.String()
}

func parseCIDROrIP(raw string) string {
	if !strings.Contains(raw, "/") {
		return normalizeIPv4(raw)
	}

	_, ipnet, err := net.ParseCIDR(raw)
	if err != nil || ipnet == nil || ipnet.IP.To4() == nil {
		return ""
	}

	return ipnet.String()
}
