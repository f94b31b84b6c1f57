package checker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"proxysheet/internal/domain"
	"proxysheet/internal/support"
)

const (
	maxResponseBodyLength = 4096
	userAgent             = "proxysheet/1.0"

	SchemeSOCKS5 = "socks5"
	SchemeHTTP   = "http"
)

// Prober checks a proxy by making one request through it to a fixed target.
type Prober struct {
	scheme  string
	target  string
	timeout time.Duration
}

func NewProber(scheme, target string, timeout time.Duration) *Prober {
	if scheme == "" {
		scheme = SchemeSOCKS5
	}
	return &Prober{scheme: scheme, target: target, timeout: timeout}
}

// Probe reports whether a request through proxyToCheck reached the target with
// a 2xx status before the timeout. It never retries.
func (p *Prober) Probe(ctx context.Context, proxyToCheck domain.Proxy) domain.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	transport, err := CreateTransport(proxyToCheck, p.scheme, p.timeout)
	if err != nil {
		return domain.ProbeFailure(domain.FailureOther, err)
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return domain.ProbeFailure(domain.FailureOther, err)
	}
	req.Header.Set("Connection", "close")
	req.Header.Set("User-Agent", userAgent)

	timeStart := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return domain.ProbeFailure(classifyProbeError(err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLength))
	if err != nil {
		return domain.ProbeFailure(classifyProbeError(err), fmt.Errorf("read response body: %w", err))
	}
	latency := time.Since(timeStart)

	if resp.StatusCode == http.StatusProxyAuthRequired {
		return domain.ProbeFailure(domain.FailureAuth, fmt.Errorf("proxy rejected credentials: status %d", resp.StatusCode))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.ProbeFailure(domain.FailureStatus, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}

	return domain.ProbeSuccess(support.FindIP(string(body)), latency)
}

// CreateTransport builds a transport that tunnels every request through
// proxyToCheck. Each call gets its own transport so concurrent probes never
// share dialers or connections.
func CreateTransport(proxyToCheck domain.Proxy, scheme string, timeout time.Duration) (*http.Transport, error) {
	baseDialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: -1,
	}

	transport := &http.Transport{
		DialContext:           baseDialer.DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}

	switch scheme {
	case SchemeHTTP:
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   proxyToCheck.Address(),
		}
		if proxyToCheck.HasAuth() {
			proxyURL.User = url.UserPassword(proxyToCheck.Username(), proxyToCheck.Password())
		}
		transport.Proxy = http.ProxyURL(proxyURL)

	case SchemeSOCKS5, "":
		var auth *proxy.Auth
		if proxyToCheck.HasAuth() {
			auth = &proxy.Auth{User: proxyToCheck.Username(), Password: proxyToCheck.Password()}
		}

		// Hostnames are passed to the proxy unresolved, so DNS happens on the proxy side.
		socksDialer, err := proxy.SOCKS5("tcp", proxyToCheck.Address(), auth, baseDialer)
		if err != nil {
			return nil, fmt.Errorf("create socks5 dialer: %w", err)
		}

		if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		}

	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", scheme)
	}

	return transport, nil
}
