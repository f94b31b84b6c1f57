package runtime

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/charmbracelet/log"

	"proxysheet/internal/domain"
)

// ProbeStatistics aggregates probe outcomes of a single run. It is safe for
// concurrent use by the checker workers.
type ProbeStatistics struct {
	mu        sync.Mutex
	started   time.Time
	probed    int
	reachable int
	failures  map[domain.FailureReason]int
	latency   ewma.MovingAverage
	fastest   time.Duration
	slowest   time.Duration
}

func NewProbeStatistics() *ProbeStatistics {
	return &ProbeStatistics{
		started:  time.Now(),
		failures: make(map[domain.FailureReason]int),
		latency:  ewma.NewMovingAverage(),
	}
}

// RecordProbe adds one probe result.
func (s *ProbeStatistics) RecordProbe(result domain.ProbeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.probed++
	if !result.Reachable {
		s.failures[result.Reason]++
		return
	}

	s.reachable++
	s.latency.Add(float64(result.Latency))
	if s.fastest == 0 || result.Latency < s.fastest {
		s.fastest = result.Latency
	}
	if result.Latency > s.slowest {
		s.slowest = result.Latency
	}
}

// Snapshot is a point-in-time copy of the statistics.
type Snapshot struct {
	Probed       int
	Reachable    int
	Failures     map[domain.FailureReason]int
	LatencyEWMA  time.Duration
	FastestProbe time.Duration
	SlowestProbe time.Duration
	Elapsed      time.Duration
}

func (s *ProbeStatistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		Probed:       s.probed,
		Reachable:    s.reachable,
		Failures:     maps.Clone(s.failures),
		FastestProbe: s.fastest,
		SlowestProbe: s.slowest,
		Elapsed:      time.Since(s.started),
	}
	if s.reachable > 0 {
		snapshot.LatencyEWMA = time.Duration(s.latency.Value())
	}
	return snapshot
}

// Log writes the run summary at info level.
func (s *ProbeStatistics) Log() {
	snapshot := s.Snapshot()

	keyvals := []any{
		"probed", snapshot.Probed,
		"reachable", snapshot.Reachable,
		"latency_ewma", snapshot.LatencyEWMA.Round(time.Millisecond),
		"fastest", snapshot.FastestProbe.Round(time.Millisecond),
		"slowest", snapshot.SlowestProbe.Round(time.Millisecond),
		"elapsed", snapshot.Elapsed.Round(time.Millisecond),
	}
	for _, reason := range slices.Sorted(maps.Keys(snapshot.Failures)) {
		keyvals = append(keyvals, "failed_"+string(reason), snapshot.Failures[reason])
	}

	log.Info("Probe statistics", keyvals...)
}
