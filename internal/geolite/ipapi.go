package geolite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"proxysheet/internal/domain"
)

const (
	DefaultIPAPIEndpoint = "http://ip-api.com/json/"
	ipPlaceholder        = "{ip}"
	maxGeoResponseLength = 64 << 10
	userAgent            = "proxysheet-geo/1.0"
)

// Field names differ between providers (ip-api.com, ipapi.co, ipinfo.io); the
// first non-empty candidate wins.
var (
	countryFields = []string{"country_name", "country"}
	regionFields  = []string{"regionName", "region"}
	cityFields    = []string{"city"}
	ispFields     = []string{"isp"}
	orgFields     = []string{"org", "organization", "asn_org"}
)

// IPAPIProvider queries an ip-api.com compatible JSON endpoint. The key is
// appended to the endpoint, or substituted for "{ip}" when present.
type IPAPIProvider struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewIPAPIProvider creates a provider. ratePerMinute <= 0 disables client side throttling.
func NewIPAPIProvider(endpoint string, timeout time.Duration, ratePerMinute int) *IPAPIProvider {
	if endpoint == "" {
		endpoint = DefaultIPAPIEndpoint
	}

	provider := &IPAPIProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
	if ratePerMinute > 0 {
		provider.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), 1)
	}

	return provider
}

func (p *IPAPIProvider) Name() string {
	return "ip-api"
}

func (p *IPAPIProvider) Lookup(ctx context.Context, hostOrIP string) (domain.GeoMetadata, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return domain.GeoMetadata{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.lookupURL(hostOrIP), nil)
	if err != nil {
		return domain.GeoMetadata{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.GeoMetadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GeoMetadata{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGeoResponseLength)).Decode(&payload); err != nil {
		return domain.GeoMetadata{}, fmt.Errorf("decode response: %w", err)
	}

	return parseGeoPayload(payload)
}

func (p *IPAPIProvider) lookupURL(hostOrIP string) string {
	escaped := url.PathEscape(hostOrIP)
	if strings.Contains(p.endpoint, ipPlaceholder) {
		return strings.ReplaceAll(p.endpoint, ipPlaceholder, escaped)
	}
	if !strings.HasSuffix(p.endpoint, "/") {
		return p.endpoint + "/" + escaped
	}
	return p.endpoint + escaped
}

func parseGeoPayload(payload map[string]any) (domain.GeoMetadata, error) {
	if status, ok := payload["status"].(string); ok && !strings.EqualFold(status, "success") {
		message, _ := payload["message"].(string)
		return domain.GeoMetadata{}, fmt.Errorf("lookup status %q: %s", status, message)
	}
	if failed, ok := payload["error"].(bool); ok && failed {
		reason, _ := payload["reason"].(string)
		return domain.GeoMetadata{}, fmt.Errorf("lookup error: %s", reason)
	}

	metadata := domain.GeoMetadata{
		Country: firstString(payload, countryFields),
		Region:  firstString(payload, regionFields),
		City:    firstString(payload, cityFields),
		ISP:     firstString(payload, ispFields),
		Org:     firstString(payload, orgFields),
	}

	if metadata == (domain.GeoMetadata{}) {
		return domain.GeoMetadata{}, errors.New("lookup response has no known fields")
	}

	return metadata.Normalize(), nil
}

func firstString(payload map[string]any, keys []string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
