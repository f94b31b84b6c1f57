package domain

import "time"

// FailureReason classifies why a proxy was considered inactive.
// It carries no weight in the pipeline; any reason other than FailureNone means inactive.
type FailureReason string

const (
	FailureNone    FailureReason = ""
	FailureRefused FailureReason = "refused"
	FailureTimeout FailureReason = "timeout"
	FailureDNS     FailureReason = "dns"
	FailureAuth    FailureReason = "auth"
	FailureStatus  FailureReason = "status"
	FailureBlocked FailureReason = "blocked"
	FailureOther   FailureReason = "other"
)

// ProbeResult is the outcome of testing one proxy.
type ProbeResult struct {
	Reachable bool
	EgressIP  string
	Latency   time.Duration
	Reason    FailureReason
	Err       error
}

func ProbeSuccess(egressIP string, latency time.Duration) ProbeResult {
	return ProbeResult{Reachable: true, EgressIP: egressIP, Latency: latency}
}

func ProbeFailure(reason FailureReason, err error) ProbeResult {
	if reason == FailureNone {
		reason = FailureOther
	}
	return ProbeResult{Reason: reason, Err: err}
}
