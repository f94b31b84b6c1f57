package config

import "time"

const (
	defaultProbeTimeout = 5 * time.Second
	defaultGeoTimeout   = 10 * time.Second
	minRequestTimeout   = 100 * time.Millisecond
)

// ProbeTimeout bounds a single probe through a proxy.
func (cfg Config) ProbeTimeout() time.Duration {
	return millisecondsOr(cfg.Checker.Timeout, defaultProbeTimeout)
}

// GeoTimeout bounds a single geolocation lookup.
func (cfg Config) GeoTimeout() time.Duration {
	return millisecondsOr(cfg.Geo.Timeout, defaultGeoTimeout)
}

// RunTimeout is the overall deadline of a run; zero means none.
func (cfg Config) RunTimeout() time.Duration {
	return time.Duration(cfg.Checker.RunTimeout) * time.Millisecond
}

func (cfg Config) RunLockTTL() time.Duration {
	return time.Duration(cfg.RunLock.TTL) * time.Second
}

func millisecondsOr(ms uint32, fallback time.Duration) time.Duration {
	if ms == 0 {
		return fallback
	}

	interval := time.Duration(ms) * time.Millisecond
	if interval < minRequestTimeout {
		interval = minRequestTimeout
	}
	return interval
}

// GeoLiteMaxAge is how old a local GeoLite database may get before it is
// downloaded again; zero means never.
func (cfg Config) GeoLiteMaxAge() time.Duration {
	return time.Duration(cfg.Geo.GeoLiteMaxAge) * 24 * time.Hour
}
