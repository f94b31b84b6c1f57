// Package geolite enriches reachable proxies with geolocation metadata, either
// from an HTTP lookup service or from local MaxMind GeoLite2 databases.
package geolite

import (
	"context"

	"github.com/charmbracelet/log"

	"proxysheet/internal/domain"
)

// Enricher looks up metadata for a host or IP. It never fails: a lookup that
// cannot be completed yields domain.GeoNotFound().
type Enricher interface {
	Enrich(ctx context.Context, hostOrIP string) domain.GeoResult
}

// Provider is a single lookup backend.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, hostOrIP string) (domain.GeoMetadata, error)
}

// Chain asks each provider in order and returns the first successful answer.
type Chain struct {
	providers []Provider
}

func NewChain(providers ...Provider) *Chain {
	filtered := make([]Provider, 0, len(providers))
	for _, provider := range providers {
		if provider != nil {
			filtered = append(filtered, provider)
		}
	}
	return &Chain{providers: filtered}
}

func (c *Chain) Len() int {
	return len(c.providers)
}

func (c *Chain) Enrich(ctx context.Context, hostOrIP string) domain.GeoResult {
	if hostOrIP == "" {
		return domain.GeoNotFound()
	}

	for _, provider := range c.providers {
		metadata, err := provider.Lookup(ctx, hostOrIP)
		if err != nil {
			log.Debug("Geo lookup failed", "provider", provider.Name(), "key", hostOrIP, "error", err)
			continue
		}
		return domain.GeoFound(provider.Name(), metadata)
	}

	return domain.GeoNotFound()
}
