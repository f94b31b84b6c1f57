// Package publisher writes the active proxy records to their destinations.
// Every sink replaces its previous contents so it only ever holds the latest run.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"proxysheet/internal/domain"
	"proxysheet/internal/security"
)

// ErrAllSinksFailed is returned when no configured sink accepted the records.
var ErrAllSinksFailed = errors.New("publish: every sink failed")

type Sink interface {
	Name() string
	Replace(ctx context.Context, records []domain.ActiveProxyRecord) error
}

type Options struct {
	// SkipEmpty leaves the sinks untouched when no proxy is active.
	SkipEmpty bool
	Policy    security.CredentialPolicy
	Cipher    *security.ProxyCipher
}

type Result struct {
	Published []string
	Failed    map[string]error
	Skipped   bool
}

// Publish applies the credential policy once and hands the same rows to every
// sink. A failing sink does not stop the others; all failures are joined into
// the returned error, which wraps ErrAllSinksFailed when nothing succeeded.
func Publish(ctx context.Context, sinks []Sink, records []domain.ActiveProxyRecord, opts Options) (Result, error) {
	result := Result{Failed: make(map[string]error)}

	if len(records) == 0 && opts.SkipEmpty {
		log.Info("No active proxies, leaving sinks untouched")
		result.Skipped = true
		return result, nil
	}

	protected, err := security.ProtectCredentials(opts.Policy, opts.Cipher, records)
	if err != nil {
		return result, fmt.Errorf("%w: apply credential policy: %w", ErrAllSinksFailed, err)
	}

	var errs []error
	for _, sink := range sinks {
		if err := sink.Replace(ctx, protected); err != nil {
			log.Error("Failed to publish", "sink", sink.Name(), "error", err)
			result.Failed[sink.Name()] = err
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		log.Info("Published active proxies", "sink", sink.Name(), "count", len(protected))
		result.Published = append(result.Published, sink.Name())
	}

	if len(errs) > 0 && len(result.Published) == 0 {
		errs = append([]error{ErrAllSinksFailed}, errs...)
	}

	return result, errors.Join(errs...)
}
