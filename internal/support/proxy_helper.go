package support

import (
	"errors"
	"fmt"
	"iter"
	"net/netip"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"proxysheet/internal/domain"
)

// LineFormat selects how an input line is split into proxy fields.
type LineFormat string

const (
	// FormatAuto picks url, pipe or colon per line, preferring colon.
	FormatAuto LineFormat = "auto"
	// FormatColon accepts host:port and host:port:username:password.
	FormatColon LineFormat = "colon"
	// FormatPipe accepts host:port|username|password and host:port:username:password|...
	FormatPipe LineFormat = "pipe"
	// FormatURL accepts scheme://[user:pass@]host:port and user:pass@host:port.
	FormatURL LineFormat = "url"
)

// ErrInputUnavailable is returned when the proxy list cannot be read.
var ErrInputUnavailable = errors.New("proxy input unavailable")

func ParseLineFormat(raw string) (LineFormat, error) {
	switch format := LineFormat(strings.ToLower(strings.TrimSpace(raw))); format {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatColon, FormatPipe, FormatURL:
		return format, nil
	default:
		return "", fmt.Errorf("unknown proxy line format %q", raw)
	}
}

// ReadProxyFile reads the whole input file up front so a missing or unreadable
// file fails before any proxy is contacted.
func ReadProxyFile(path string) (iter.Seq[string], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	return strings.Lines(string(data)), nil
}

// ParseLines lazily turns raw lines into proxies. Malformed lines are skipped.
func ParseLines(lines iter.Seq[string], format LineFormat) iter.Seq[domain.Proxy] {
	return func(yield func(domain.Proxy) bool) {
		for line := range lines {
			proxy, ok := ParseLine(line, format)
			if !ok {
				continue
			}
			if !yield(proxy) {
				return
			}
		}
	}
}

func ParseText(text string, format LineFormat) []domain.Proxy {
	return slices.Collect(ParseLines(strings.Lines(text), format))
}

// ParseLine parses a single line. The boolean is false for blank, comment and
// malformed lines.
func ParseLine(line string, format LineFormat) (domain.Proxy, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return domain.Proxy{}, false
	}

	switch format {
	case FormatAuto, "":
		return parseAutoLine(line)
	case FormatColon:
		return parseColonLine(line)
	case FormatPipe:
		return parsePipeLine(line)
	case FormatURL:
		return parseURLLine(line)
	default:
		return domain.Proxy{}, false
	}
}

// parseAutoLine tries the colon shape before user:pass@host, so a password
// containing '@' or '|' is never read as another host. Pipe parsing applies
// only when the text before the first '|' is a bare host:port.
func parseAutoLine(line string) (domain.Proxy, bool) {
	if strings.Contains(line, "://") {
		return parseURLLine(line)
	}

	if head, _, found := strings.Cut(line, "|"); found {
		if fields, ok := splitColonFields(strings.TrimSpace(head)); ok && len(fields) == 2 {
			return parsePipeLine(line)
		}
	}

	if proxy, ok := parseColonLine(line); ok {
		return proxy, true
	}

	if strings.Contains(line, "@") {
		return parseURLLine(line)
	}

	return domain.Proxy{}, false
}

func parseColonLine(line string) (domain.Proxy, bool) {
	fields, ok := splitColonFields(line)
	if !ok {
		return domain.Proxy{}, false
	}

	switch len(fields) {
	case 2:
		return buildProxy(fields[0], fields[1], "", "")
	case 4:
		return buildProxy(fields[0], fields[1], fields[2], fields[3])
	default:
		return domain.Proxy{}, false
	}
}

func parsePipeLine(line string) (domain.Proxy, bool) {
	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return domain.Proxy{}, false
	}

	fields, ok := splitColonFields(strings.TrimSpace(parts[0]))
	if !ok {
		return domain.Proxy{}, false
	}

	switch len(fields) {
	case 2:
		if len(parts) >= 3 {
			return buildProxy(fields[0], fields[1], strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]))
		}
		return buildProxy(fields[0], fields[1], "", "")
	case 4:
		return buildProxy(fields[0], fields[1], fields[2], fields[3])
	default:
		return domain.Proxy{}, false
	}
}

func parseURLLine(line string) (domain.Proxy, bool) {
	raw := line
	if !strings.Contains(raw, "://") {
		// user:pass@host:port carries at most one ':' before the '@'.
		if at := strings.LastIndex(raw, "@"); at >= 0 && strings.Count(raw[:at], ":") > 1 {
			return domain.Proxy{}, false
		}
		raw = "socks5://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return domain.Proxy{}, false
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return domain.Proxy{}, false
	}

	var username, password string
	if parsed.User != nil {
		username = parsed.User.Username()
		password, _ = parsed.User.Password()
	}

	return buildProxy(parsed.Hostname(), parsed.Port(), username, password)
}

// splitColonFields splits on ':' while keeping a bracketed IPv6 host intact.
func splitColonFields(value string) ([]string, bool) {
	if !strings.HasPrefix(value, "[") {
		return strings.Split(value, ":"), true
	}

	end := strings.Index(value, "]")
	if end < 0 {
		return nil, false
	}
	rest := value[end+1:]
	if !strings.HasPrefix(rest, ":") {
		return nil, false
	}

	return append([]string{value[1:end]}, strings.Split(rest[1:], ":")...), true
}

func buildProxy(host, rawPort, username, password string) (domain.Proxy, bool) {
	host = normalizeHost(host)
	if host == "" || strings.ContainsAny(host, " \t/|@") {
		return domain.Proxy{}, false
	}

	port, err := strconv.Atoi(strings.TrimSpace(rawPort))
	if err != nil {
		return domain.Proxy{}, false
	}

	proxy, err := domain.NewProxy(host, port, strings.TrimSpace(username), strings.TrimSpace(password))
	if err != nil {
		return domain.Proxy{}, false
	}

	return proxy, true
}

// normalizeHost strips leading zeros from dotted-quad octets ("010.001.002.003").
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)

	octets := strings.Split(host, ".")
	if len(octets) != 4 {
		return host
	}

	for i, octet := range octets {
		value, err := strconv.Atoi(octet)
		if err != nil || value < 0 || value > 255 || octet == "" {
			return host
		}
		octets[i] = strconv.Itoa(value)
	}

	return strings.Join(octets, ".")
}

// FindIP identifies the first IP address (IPv4 or IPv6, compressed forms and
// host:port included) in a given string.
func FindIP(input string) string {
	for _, token := range strings.FieldsFunc(input, isNotAddrRune) {
		addr, err := netip.ParseAddr(token)
		if err != nil {
			addrPort, portErr := netip.ParseAddrPort(token)
			if portErr != nil {
				continue
			}
			addr = addrPort.Addr()
		}
		if addr.IsUnspecified() {
			continue
		}
		return addr.Unmap().String()
	}
	return ""
}

func isNotAddrRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F', r == '.', r == ':':
		return false
	default:
		return true
	}
}
