package geolite

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
	"golang.org/x/sync/singleflight"

	"proxysheet/internal/domain"
)

const (
	CityEdition             = "GeoLite2-City"
	ASNEdition              = "GeoLite2-ASN"
	defaultDNSLookupTimeout = 2 * time.Second
)

var ErrGeoLiteUnavailable = errors.New("geolite databases unavailable")

type hostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// GeoLiteProvider answers lookups from local GeoLite2 City and ASN databases.
// Hostnames are resolved locally on every lookup; concurrent lookups of the
// same name share one query.
type GeoLiteProvider struct {
	cityPath string
	asnPath  string

	mu     sync.RWMutex
	cityDB *geoip2.Reader
	asnDB  *geoip2.Reader

	resolver       hostResolver
	dnsTimeout     time.Duration
	dnsLookupGroup singleflight.Group
}

// OpenGeoLite loads whichever of the two databases exist. It fails only when
// neither can be read.
func OpenGeoLite(cityPath, asnPath string) (*GeoLiteProvider, error) {
	provider := &GeoLiteProvider{
		cityPath:   cityPath,
		asnPath:    asnPath,
		resolver:   net.DefaultResolver,
		dnsTimeout: defaultDNSLookupTimeout,
	}
	if err := provider.Reload(); err != nil {
		return nil, err
	}
	return provider, nil
}

func (p *GeoLiteProvider) Name() string {
	return "geolite"
}

// Reload swaps the readers for fresh copies from disk.
func (p *GeoLiteProvider) Reload() error {
	var errorList []error

	cityReader, err := readerFromDisk(p.cityPath)
	if err != nil {
		errorList = append(errorList, fmt.Errorf("city: %w", err))
	}
	asnReader, err := readerFromDisk(p.asnPath)
	if err != nil {
		errorList = append(errorList, fmt.Errorf("asn: %w", err))
	}

	if cityReader == nil && asnReader == nil {
		return fmt.Errorf("%w: %w", ErrGeoLiteUnavailable, errors.Join(errorList...))
	}
	if len(errorList) > 0 {
		log.Warn("GeoLite loaded partially", "error", errors.Join(errorList...))
	}

	p.mu.Lock()
	oldCity, oldASN := p.cityDB, p.asnDB
	p.cityDB, p.asnDB = cityReader, asnReader
	p.mu.Unlock()

	if oldCity != nil {
		_ = oldCity.Close()
	}
	if oldASN != nil {
		_ = oldASN.Close()
	}

	return nil
}

func (p *GeoLiteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.cityDB != nil {
		errs = append(errs, p.cityDB.Close())
		p.cityDB = nil
	}
	if p.asnDB != nil {
		errs = append(errs, p.asnDB.Close())
		p.asnDB = nil
	}
	return errors.Join(errs...)
}

func (p *GeoLiteProvider) Lookup(ctx context.Context, hostOrIP string) (domain.GeoMetadata, error) {
	ip, err := p.resolve(ctx, hostOrIP)
	if err != nil {
		return domain.GeoMetadata{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.cityDB == nil && p.asnDB == nil {
		return domain.GeoMetadata{}, ErrGeoLiteUnavailable
	}

	var metadata domain.GeoMetadata

	if p.cityDB != nil {
		if record, err := p.cityDB.City(ip); err == nil {
			metadata.Country = record.Country.Names["en"]
			if metadata.Country == "" {
				metadata.Country = strings.ToUpper(record.Country.IsoCode)
			}
			if len(record.Subdivisions) > 0 {
				metadata.Region = record.Subdivisions[0].Names["en"]
			}
			metadata.City = record.City.Names["en"]
		}
	}

	if p.asnDB != nil {
		if record, err := p.asnDB.ASN(ip); err == nil && record.AutonomousSystemOrganization != "" {
			metadata.ISP = record.AutonomousSystemOrganization
			metadata.Org = record.AutonomousSystemOrganization
		}
	}

	if metadata == (domain.GeoMetadata{}) {
		return domain.GeoMetadata{}, fmt.Errorf("no geolite record for %s", ip)
	}

	return metadata.Normalize(), nil
}

func (p *GeoLiteProvider) resolve(ctx context.Context, hostOrIP string) (net.IP, error) {
	if ip := net.ParseIP(hostOrIP); ip != nil {
		return ip, nil
	}

	result, err, _ := p.dnsLookupGroup.Do(hostOrIP, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, p.dnsTimeout)
		defer cancel()

		addrs, err := p.resolver.LookupIPAddr(lookupCtx, hostOrIP)
		if err != nil {
			return nil, err
		}
		ips := make([]net.IP, 0, len(addrs))
		for _, addr := range addrs {
			ips = append(ips, addr.IP)
		}
		return ips, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", hostOrIP, err)
	}

	ips := result.([]net.IP)
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolve %s: no addresses", hostOrIP)
	}

	return ips[0], nil
}

func readerFromDisk(path string) (*geoip2.Reader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("no path configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geoip2.FromBytes(data)
}
