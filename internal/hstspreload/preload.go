// Package hstspreload checks a registrable domain against the Chromium
// HSTS preload list, used to cross-check the strict-transport-security
// test even when no Strict-Transport-Security header is present.
package hstspreload

import (
	"context"
	"sync"
	"time"

	"github.com/chromium/hstspreload/chromium/preloadlist"
)

// Verdict is the outcome of a preload-list lookup for one registrable
// domain.
type Verdict struct {
	Preloaded bool
	Mode      string // e.g. "force-https"; empty if not preloaded
	Policy    string // preloadlist.PolicyType as a string, if known
}

// Checker looks up registrable domains against a snapshot of the Chromium
// preload list. The snapshot is only ever fetched when a caller explicitly
// asks for one, via Refresh or StartAutoRefresh — Lookup itself never
// touches the network, so a scan's preload check can never block on (or
// fail because of) a list fetch.
type Checker struct {
	mu        sync.RWMutex
	index     *preloadlist.IndexedEntries
	fetchedAt time.Time
	ttl       time.Duration
}

// NewChecker builds a Checker with an empty list; Refresh or
// StartAutoRefresh populates it. ttl is the interval StartAutoRefresh
// re-fetches at.
func NewChecker(ttl time.Duration) *Checker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Checker{ttl: ttl}
}

// Refresh fetches the latest preload list snapshot once. A failure here is
// tolerated by the caller: the previous snapshot (possibly empty) remains in
// use, matching the retriever's "best-effort, never fails the scan" policy
// for this probe.
func (c *Checker) Refresh(ctx context.Context) error {
	type result struct {
		list preloadlist.PreloadList
		err  error
	}
	done := make(chan result, 1)
	go func() {
		list, err := preloadlist.NewFromLatest()
		done <- result{list: list, err: err}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		index := r.list.Index()
		c.mu.Lock()
		c.index = &index
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return nil
	}
}

// StartAutoRefresh runs Refresh once immediately and then every ttl in the
// background until ctx is cancelled. A long-lived server process calls this
// once at startup so its snapshot stays current without any individual
// scan ever paying for the fetch.
func (c *Checker) StartAutoRefresh(ctx context.Context) {
	go func() {
		_ = c.Refresh(ctx)
		ticker := time.NewTicker(c.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.Refresh(ctx)
			}
		}
	}()
}

// Lookup returns the preload verdict for a registrable domain from
// whatever snapshot Refresh last populated. An empty/never-refreshed
// snapshot degrades to Verdict{Preloaded: false} rather than propagating
// an error, since preload membership is an enrichment, never a
// scan-blocking fact.
func (c *Checker) Lookup(ctx context.Context, registrableDomain string) Verdict {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.index == nil {
		return Verdict{}
	}
	entry, found := c.index.Get(registrableDomain)
	if found == preloadlist.EntryNotFound {
		return Verdict{}
	}
	return Verdict{
		Preloaded: entry.Mode == preloadlist.ForceHTTPS,
		Mode:      string(entry.Mode),
		Policy:    string(entry.Policy),
	}
}
