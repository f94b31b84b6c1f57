package checker

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"proxysheet/internal/domain"
)

// classifyProbeError maps a transport error onto a FailureReason. The reason is
// only used for statistics; every failure means the proxy is inactive.
func classifyProbeError(err error) domain.FailureReason {
	if err == nil {
		return domain.FailureNone
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.FailureTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return domain.FailureTimeout
		}
		return domain.FailureDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.FailureRefused
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FailureTimeout
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "authentication"),
		strings.Contains(message, "proxy authentication required"),
		strings.Contains(message, "no acceptable authentication methods"):
		return domain.FailureAuth
	case strings.Contains(message, "connection refused"):
		return domain.FailureRefused
	case strings.Contains(message, "no such host"):
		return domain.FailureDNS
	default:
		return domain.FailureOther
	}
}
