// Package batchrunner fans a batch of host strings out to bounded
// concurrent scans, deduping by canonical form and never letting one
// entry's failure abort the batch.
package batchrunner

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/shared/constants"
	secerrors "github.com/secinto/httpobservatory/internal/shared/errors"
	"github.com/secinto/httpobservatory/internal/site"
)

// Scanner is the narrow surface batchrunner needs: canonicalize-and-scan
// a single host string.
type Scanner interface {
	Scan(ctx context.Context, hostString string, overrides battery.Overrides) (grader.ScanReport, error)
}

// Entry is one batch result, keyed by the caller's original (normalized)
// input string.
type Entry struct {
	Success bool              `json:"success"`
	Report  *grader.ScanReport `json:"report,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Runner bounds concurrency across every batch it runs, the way the
// teacher's own check runner bounds its worker pool.
type Runner struct {
	scanner     Scanner
	concurrency int
	limiter     *rate.Limiter
}

// New builds a Runner with the given concurrency cap. A nil limiter
// disables the per-second throttle and relies solely on the concurrency
// semaphore.
func New(scanner Scanner, concurrency int, limiter *rate.Limiter) *Runner {
	if concurrency <= 0 {
		concurrency = constants.DefaultBatchConcurrency
	}
	return &Runner{scanner: scanner, concurrency: concurrency, limiter: limiter}
}

// Run executes one scan per distinct canonical form among urls, capped at
// MAX_BATCH_SIZE entries, bounded to the runner's concurrency, and returns
// a map keyed by the caller's original (whitespace-trimmed) input string.
// Every original key maps to the Entry computed for its canonical form,
// so duplicates share one retrieval but each still gets a response.
func (r *Runner) Run(ctx context.Context, urls []string, overrides battery.Overrides) (map[string]Entry, error) {
	if len(urls) == 0 {
		return nil, secerrors.ErrEmptyBatch
	}

	normalized := make([]string, len(urls))
	for i, u := range urls {
		normalized[i] = strings.TrimSpace(u)
	}

	canonicalOf := map[string]string{} // original (normalized) -> canonical dedup key
	order := []string{}                // first-seen order of distinct canonical keys
	seen := map[string]bool{}
	for _, u := range normalized {
		key := strings.ToLower(u)
		if s, err := site.FromString(u); err == nil {
			key = s.Key()
		}
		canonicalOf[u] = key
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}

	if len(order) > constants.MaxBatchSize {
		return nil, secerrors.ErrBatchTooLarge
	}

	results := make(map[string]Entry, len(order))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.concurrency)

	for _, key := range order {
		wg.Add(1)
		go func(canonical string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					mu.Lock()
					results[canonical] = Entry{Success: false, Error: "scan-cancelled", Message: err.Error()}
					mu.Unlock()
					return
				}
			}

			report, err := r.scanner.Scan(ctx, canonical, overrides)
			mu.Lock()
			if err != nil {
				results[canonical] = Entry{Success: false, Error: errKind(err), Message: err.Error()}
			} else {
				results[canonical] = Entry{Success: true, Report: &report}
			}
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	out := make(map[string]Entry, len(normalized))
	for _, u := range normalized {
		out[u] = results[canonicalOf[u]]
	}
	return out, nil
}

func errKind(err error) string {
	switch err {
	case secerrors.ErrInvalidHostname:
		return "invalid-hostname"
	case secerrors.ErrInvalidHostnameLookup:
		return "invalid-hostname-lookup"
	case secerrors.ErrInvalidPort:
		return "invalid-port"
	default:
		return "scan-failed"
	}
}
