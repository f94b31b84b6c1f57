package checker

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"proxysheet/internal/domain"
	"proxysheet/internal/support"
)

const (
	GeoKeyEgress = "egress"
	GeoKeyHost   = "host"

	DefaultWorkers = 16
)

type ProxyProber interface {
	Probe(ctx context.Context, proxy domain.Proxy) domain.ProbeResult
}

type GeoEnricher interface {
	Enrich(ctx context.Context, hostOrIP string) domain.GeoResult
}

type Blocklist interface {
	Blocks(host string) bool
}

// ProbeRecorder receives every probe result. Implementations must be safe for
// concurrent use.
type ProbeRecorder interface {
	RecordProbe(result domain.ProbeResult)
}

type PipelineOptions struct {
	Workers   int
	GeoKey    string
	Format    support.LineFormat
	Blocklist Blocklist
	Recorder  ProbeRecorder
	Clock     func() time.Time
}

// Pipeline checks every proxy, enriches the reachable ones and assembles the
// active proxy records.
type Pipeline struct {
	prober    ProxyProber
	enricher  GeoEnricher
	workers   int
	geoKey    string
	format    support.LineFormat
	blocklist Blocklist
	recorder  ProbeRecorder
	clock     func() time.Time
}

// Report is the outcome of one run. Active always equals len(Records) and
// Checked equals Active plus the sum of Failures.
type Report struct {
	Records  []domain.ActiveProxyRecord
	Active   int
	Checked  int
	Failures map[domain.FailureReason]int
	Started  time.Time
	Finished time.Time
}

func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

type proxyOutcome struct {
	record *domain.ActiveProxyRecord
	reason domain.FailureReason
}

func NewPipeline(prober ProxyProber, enricher GeoEnricher, opts PipelineOptions) *Pipeline {
	pipeline := &Pipeline{
		prober:    prober,
		enricher:  enricher,
		workers:   opts.Workers,
		geoKey:    opts.GeoKey,
		format:    opts.Format,
		blocklist: opts.Blocklist,
		recorder:  opts.Recorder,
		clock:     opts.Clock,
	}

	if pipeline.workers <= 0 {
		pipeline.workers = DefaultWorkers
	}
	if pipeline.geoKey == "" {
		pipeline.geoKey = GeoKeyEgress
	}
	if pipeline.format == "" {
		pipeline.format = support.FormatAuto
	}
	if pipeline.clock == nil {
		pipeline.clock = time.Now
	}

	return pipeline
}

// RunLines parses lines with the pipeline's line format and checks the result.
// Callers read the input up front so a read failure probes nothing.
func (p *Pipeline) RunLines(ctx context.Context, lines iter.Seq[string]) Report {
	return p.Run(ctx, support.ParseLines(lines, p.format))
}

// Run checks all proxies with at most p.workers probes in flight. Per-proxy
// failures never abort the run; a cancelled ctx makes outstanding probes fail.
func (p *Pipeline) Run(ctx context.Context, proxies iter.Seq[domain.Proxy]) Report {
	report := Report{
		Started:  p.clock().UTC(),
		Failures: make(map[domain.FailureReason]int),
	}

	items := slices.Collect(proxies)
	outcomes := make([]proxyOutcome, len(items))

	var group errgroup.Group
	group.SetLimit(p.workers)

	for i, proxyToCheck := range items {
		group.Go(func() error {
			outcomes[i] = p.check(ctx, proxyToCheck)
			return nil
		})
	}
	_ = group.Wait()

	for _, outcome := range outcomes {
		report.Checked++
		if outcome.record == nil {
			report.Failures[outcome.reason]++
			continue
		}
		report.Records = append(report.Records, *outcome.record)
	}

	report.Active = len(report.Records)
	report.Finished = p.clock().UTC()

	return report
}

func (p *Pipeline) check(ctx context.Context, proxyToCheck domain.Proxy) proxyOutcome {
	if p.blocklist != nil && p.blocklist.Blocks(proxyToCheck.Host) {
		log.Debug("Proxy skipped", "proxy", proxyToCheck.Address(), "reason", domain.FailureBlocked)
		return proxyOutcome{reason: domain.FailureBlocked}
	}

	result := p.prober.Probe(ctx, proxyToCheck)
	if p.recorder != nil {
		p.recorder.RecordProbe(result)
	}

	if !result.Reachable {
		log.Debug("Proxy inactive", "proxy", proxyToCheck.Address(), "reason", result.Reason, "error", result.Err)
		return proxyOutcome{reason: result.Reason}
	}

	geo := domain.GeoNotFound()
	if p.enricher != nil {
		geo = p.enricher.Enrich(ctx, p.lookupKey(proxyToCheck, result))
	}

	record := domain.NewActiveProxyRecord(proxyToCheck, geo.Metadata, p.clock())
	log.Info("Proxy active",
		"proxy", proxyToCheck.Address(),
		"latency", result.Latency.Round(time.Millisecond),
		"country", record.Country,
		"isp", record.ISP,
	)

	return proxyOutcome{record: &record}
}

func (p *Pipeline) lookupKey(proxyToCheck domain.Proxy, result domain.ProbeResult) string {
	if p.geoKey == GeoKeyEgress && result.EgressIP != "" {
		return result.EgressIP
	}
	return proxyToCheck.Host
}
