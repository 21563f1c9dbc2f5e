// Package scancache enforces §5's concurrency discipline in front of the
// scanner core: at most one active retrieval per siteKey, and a cooldown
// window within which a cached row is returned without touching the
// network.
package scancache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/site"
)

// Scanner is the narrow surface scancache needs from internal/scanner,
// kept as an interface so tests can stub it without a network-capable
// retriever.
type Scanner interface {
	ScanSite(ctx context.Context, canonical site.Site, overrides battery.Overrides) grader.ScanReport
}

// cancelledErrorKind mirrors shared/errors.ErrScanCancelled's public kind
// string. A cancelled scan never gets written to the cache: the caller's
// own context died mid-retrieval, so the result reflects that caller's
// cancellation, not the site's actual state, and must not be served to
// the next caller.
const cancelledErrorKind = "scan-cancelled"

// entry is one cached row plus the timestamp it was produced at.
type entry struct {
	report  grader.ScanReport
	siteKey string
	at      time.Time
}

// Cache guards a keyed cooldown window with a singleflight group so
// concurrent callers for the same siteKey share one retrieval.
type Cache struct {
	scanner  Scanner
	cooldown time.Duration

	group singleflight.Group

	mu   sync.RWMutex
	rows map[string]entry
}

// New builds a Cache in front of scanner, applying cooldown to every key.
func New(scanner Scanner, cooldown time.Duration) *Cache {
	return &Cache{
		scanner:  scanner,
		cooldown: cooldown,
		rows:     map[string]entry{},
	}
}

// Get returns the cached row for siteKey if one exists, regardless of
// freshness, for callers implementing the GET /analyze cacheTimeForGet
// policy themselves.
func (c *Cache) Get(siteKey string) (grader.ScanReport, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rows[siteKey]
	if !ok {
		return grader.ScanReport{}, time.Time{}, false
	}
	return e.report, e.at, true
}

// Scan returns the cached row for site if it is younger than the cache's
// cooldown; otherwise it runs exactly one retrieval per siteKey even
// under concurrent callers, via singleflight, and writes through the
// fresh result before returning it.
func (c *Cache) Scan(ctx context.Context, site site.Site, overrides battery.Overrides) (grader.ScanReport, bool) {
	return c.scanWithWindow(ctx, site, overrides, c.cooldown)
}

// ScanWithCacheWindow is Scan generalized over an arbitrary freshness
// window, used by the GET /analyze endpoint's longer cacheTimeForGet.
func (c *Cache) ScanWithCacheWindow(ctx context.Context, site site.Site, overrides battery.Overrides, window time.Duration) (grader.ScanReport, bool) {
	return c.scanWithWindow(ctx, site, overrides, window)
}

// scanWithWindow implements the shared cached-or-retrieve decision; the
// bool return is true when the result came from cache.
func (c *Cache) scanWithWindow(ctx context.Context, site site.Site, overrides battery.Overrides, window time.Duration) (grader.ScanReport, bool) {
	key := site.Key()

	if cached, at, ok := c.Get(key); ok && time.Since(at) < window {
		return cached, true
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check freshness: another caller may have just won the race
		// and written a fresh row while we were waiting to enter Do.
		if cached, at, ok := c.Get(key); ok && time.Since(at) < window {
			return cached, nil
		}
		report := c.scanner.ScanSite(ctx, site, overrides)
		if report.Error != cancelledErrorKind {
			c.put(key, report)
		}
		return report, nil
	})
	if err != nil {
		// c.scanner.ScanSite never returns an error today; kept for
		// forward compatibility with a Scanner that might.
		return grader.ScanReport{}, false
	}
	return v.(grader.ScanReport), false
}

// Fresh always runs a single-flighted retrieval regardless of cooldown
// freshness, and writes the result through to the cache before
// returning it. Used by callers that need a fully populated report (the
// full-details endpoints) on top of an already-fresh cooldown-gated
// summary.
func (c *Cache) Fresh(ctx context.Context, site site.Site, overrides battery.Overrides) grader.ScanReport {
	key := site.Key()
	v, _, _ := c.group.Do(key+"#fresh", func() (interface{}, error) {
		report := c.scanner.ScanSite(ctx, site, overrides)
		if report.Error != cancelledErrorKind {
			c.put(key, report)
		}
		return report, nil
	})
	return v.(grader.ScanReport)
}

func (c *Cache) put(key string, report grader.ScanReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[key] = entry{report: report, siteKey: key, at: now()}
}

// now is a seam for tests that need to control elapsed-time comparisons
// without sleeping; production code always uses wall-clock time.
var now = time.Now
