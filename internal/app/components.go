package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"proxysheet/internal/blacklist"
	"proxysheet/internal/config"
	"proxysheet/internal/geolite"
	"proxysheet/internal/jobs/checker"
	"proxysheet/internal/publisher"
	"proxysheet/internal/security"
	"proxysheet/internal/support"
)

func hasSink(cfg config.Config, name string) bool {
	return slices.Contains(cfg.Publish.Sinks, name)
}

func buildPipeline(cfg config.Config, blocked []string, enricher checker.GeoEnricher, recorder checker.ProbeRecorder) (*checker.Pipeline, error) {
	format, err := support.ParseLineFormat(cfg.Input.Format)
	if err != nil {
		return nil, err
	}

	prober := checker.NewProber(cfg.Checker.Scheme, cfg.Checker.Target, cfg.ProbeTimeout())

	return checker.NewPipeline(prober, enricher, checker.PipelineOptions{
		Workers:   int(cfg.Checker.Workers),
		GeoKey:    cfg.Geo.Key,
		Format:    format,
		Blocklist: config.NewHostBlocklist(blocked),
		Recorder:  recorder,
	}), nil
}

// blockedHosts merges the configured hosts with the downloaded blocklist sources.
func blockedHosts(ctx context.Context, cfg config.Config) ([]string, error) {
	blocked := slices.Clone(cfg.BlockedHosts)
	if len(cfg.BlocklistSources) == 0 {
		return blocked, nil
	}

	entries, err := blacklist.NewFetcher(0).FetchAll(ctx, cfg.BlocklistSources)
	if err != nil {
		return nil, fmt.Errorf("fetch blocklist sources: %w", err)
	}
	log.Info("Loaded blocklist sources", "sources", len(cfg.BlocklistSources), "entries", len(entries))

	return append(blocked, entries...), nil
}

// buildEnricher never fails: a provider that cannot start is left out of the chain.
func buildEnricher(ctx context.Context, cfg config.Config) (*geolite.Chain, func()) {
	var (
		providers []geolite.Provider
		closers   []func() error
	)

	for _, name := range cfg.Geo.Providers {
		switch name {
		case config.ProviderIPAPI:
			providers = append(providers, geolite.NewIPAPIProvider(cfg.Geo.Endpoint, cfg.GeoTimeout(), int(cfg.Geo.RatePerMinute)))

		case config.ProviderGeoLite:
			updater := geolite.NewUpdater(cfg.Geo.GeoLiteAPIKey)
			if _, err := updater.EnsureDatabases(ctx, cfg.Geo.GeoLiteCityPath, cfg.Geo.GeoLiteASNPath, cfg.GeoLiteMaxAge()); err != nil {
				if errors.Is(err, geolite.ErrNoAPIKey) {
					log.Debug("GeoLite databases missing and no license key configured")
				} else {
					log.Warn("Failed to update GeoLite databases", "error", err)
				}
			}

			provider, err := geolite.OpenGeoLite(cfg.Geo.GeoLiteCityPath, cfg.Geo.GeoLiteASNPath)
			if err != nil {
				log.Warn("GeoLite provider disabled", "error", err)
				continue
			}
			providers = append(providers, provider)
			closers = append(closers, provider.Close)
		}
	}

	chain := geolite.NewChain(providers...)
	if chain.Len() == 0 {
		log.Warn("No geolocation provider available, metadata will be Unknown")
	}

	return chain, func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}
}

func buildPublishOptions(cfg config.Config) (publisher.Options, error) {
	opts := publisher.Options{
		SkipEmpty: cfg.Publish.SkipEmpty,
		Policy:    security.CredentialPolicy(cfg.Publish.CredentialPolicy),
	}

	if opts.Policy == security.CredentialEncrypt {
		cipher, err := security.ProxyCipherFromEnv()
		if err != nil {
			return opts, fmt.Errorf("credential policy encrypt: %w", err)
		}
		opts.Cipher = cipher
	}

	return opts, nil
}

// buildSinks leaves out a sink whose backend cannot be reached; only
// configuration errors are returned.
func buildSinks(ctx context.Context, cfg config.Config, redisClient redis.UniversalClient, runID string) ([]publisher.Sink, func(), error) {
	var (
		sinks   []publisher.Sink
		closers []func() error
	)
	closeAll := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.Warn("Failed to close sink", "error", err)
			}
		}
	}

	for _, name := range cfg.Publish.Sinks {
		switch name {
		case config.SinkSheets:
			sink, err := publisher.NewSheetsSink(ctx, publisher.SheetsConfig{
				SpreadsheetID:   cfg.Publish.Sheets.SpreadsheetID,
				Worksheet:       cfg.Publish.Sheets.Worksheet,
				CredentialsFile: cfg.Publish.Sheets.CredentialsFile,
			})
			if err != nil {
				log.Error("Sink disabled", "sink", name, "error", err)
				continue
			}
			sinks = append(sinks, sink)

		case config.SinkCSV:
			sinks = append(sinks, publisher.NewCSVSink(cfg.Publish.CSV.Path))

		case config.SinkDatabase:
			dialector, err := publisher.Dialector(cfg.Publish.Database.Driver, cfg.Publish.Database.DSN)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			sink, err := publisher.NewDatabaseSink(publisher.WithDialector(dialector))
			if err != nil {
				log.Error("Sink disabled", "sink", name, "error", err)
				continue
			}
			sinks = append(sinks, sink)
			closers = append(closers, sink.Close)

		case config.SinkRedis:
			if redisClient == nil {
				log.Error("Sink disabled", "sink", name, "error", "no redis connection")
				continue
			}
			sinks = append(sinks, publisher.NewRedisSink(redisClient, cfg.Redis.KeyPrefix, runID))

		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown sink %q", name)
		}
	}

	return sinks, closeAll, nil
}
