// Package scanning is the application layer: it orchestrates the
// scanner core, the singleflight/cooldown cache, the batch runner, and
// the row repository into the four use cases the HTTP API exposes.
package scanning

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/batchrunner"
	"github.com/secinto/httpobservatory/internal/domain/scan"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/scancache"
	"github.com/secinto/httpobservatory/internal/shared/constants"
	"github.com/secinto/httpobservatory/internal/site"
)

// Result is the shape every use case returns: a graded report plus the
// persisted row it produced (or reused), and whether the cache supplied
// the report without a fresh retrieval.
type Result struct {
	Report    grader.ScanReport
	Row       scan.Row
	FromCache bool
}

// Orchestrator implements the §6 endpoint semantics over a scanner,
// cache, batch runner, and repository. It holds no scan-specific state
// of its own.
type Orchestrator struct {
	cache           *scancache.Cache
	repo            scan.Repository
	batch           *batchrunner.Runner
	cacheTimeForGet time.Duration
	resolver        site.Resolver
}

// New builds an Orchestrator, constructing its own batchrunner.Runner
// over itself (via the /scanFullDetails use case) so batch entries
// persist rows exactly like the single-URL endpoints. cacheTimeForGet
// defaults to constants.DefaultCacheTimeForGet when zero; batchConcurrency
// defaults to constants.DefaultBatchConcurrency when zero or negative.
func New(cache *scancache.Cache, repo scan.Repository, cacheTimeForGet time.Duration, batchConcurrency int, batchLimiter *rate.Limiter) *Orchestrator {
	if cacheTimeForGet <= 0 {
		cacheTimeForGet = constants.DefaultCacheTimeForGet
	}
	o := &Orchestrator{
		cache:           cache,
		repo:            repo,
		cacheTimeForGet: cacheTimeForGet,
		resolver:        site.DefaultResolver,
	}
	o.batch = batchrunner.New(batchScanAdapter{orch: o}, batchConcurrency, batchLimiter)
	return o
}

func (o *Orchestrator) canonicalize(hostString string) (site.Site, error) {
	s, err := site.FromString(hostString)
	if err != nil {
		return site.Site{}, err
	}
	if err := site.Validate(o.resolver, s); err != nil {
		return site.Site{}, err
	}
	return s, nil
}

// Scan implements POST /api/v2/scan: return the cooldown-windowed cached
// row if fresh, else retrieve, persist, and return a new summary row.
func (o *Orchestrator) Scan(ctx context.Context, hostString string, overrides battery.Overrides) (Result, error) {
	s, err := o.canonicalize(hostString)
	if err != nil {
		return Result{}, err
	}
	report, fromCache := o.cache.Scan(ctx, s, overrides)
	row, err := o.persistIfFresh(s.Key(), report, fromCache)
	if err != nil {
		return Result{}, err
	}
	return Result{Report: report, Row: row, FromCache: fromCache}, nil
}

// ScanFullDetails implements POST /api/v2/scanFullDetails: same cooldown
// policy as Scan for the persisted summary, but the returned report is
// always a fresh in-memory evaluation since persistence holds only the
// summary row.
func (o *Orchestrator) ScanFullDetails(ctx context.Context, hostString string, overrides battery.Overrides) (Result, error) {
	s, err := o.canonicalize(hostString)
	if err != nil {
		return Result{}, err
	}

	// The cooldown-gated call establishes (or reuses) the persisted
	// summary row; the full report underneath may or may not be fresh.
	cachedReport, fromCache := o.cache.Scan(ctx, s, overrides)
	row, err := o.persistIfFresh(s.Key(), cachedReport, fromCache)
	if err != nil {
		return Result{}, err
	}

	if !fromCache {
		// The cooldown call itself just performed a fresh retrieval; its
		// report already has full details.
		return Result{Report: cachedReport, Row: row, FromCache: false}, nil
	}

	// Populate fullDetails with a fresh scan without disturbing the
	// cooldown-gated summary.
	full := o.cache.Fresh(ctx, s, overrides)
	return Result{Report: full, Row: row, FromCache: true}, nil
}

// AnalyzeGet implements GET /api/v2/analyze: return the cached row if
// younger than cacheTimeForGet, else retrieve fresh, plus history.
func (o *Orchestrator) AnalyzeGet(ctx context.Context, hostString string, overrides battery.Overrides) (Result, []scan.Row, error) {
	s, err := o.canonicalize(hostString)
	if err != nil {
		return Result{}, nil, err
	}
	report, fromCache := o.cache.ScanWithCacheWindow(ctx, s, overrides, o.cacheTimeForGet)
	row, err := o.persistIfFresh(s.Key(), report, fromCache)
	if err != nil {
		return Result{}, nil, err
	}
	history, err := o.repo.History(s.Key())
	if err != nil {
		return Result{}, nil, err
	}
	return Result{Report: report, Row: row, FromCache: fromCache}, history, nil
}

// AnalyzePost implements POST /api/v2/analyze: Scan's cooldown policy,
// plus history and a fresh full-details report.
func (o *Orchestrator) AnalyzePost(ctx context.Context, hostString string, overrides battery.Overrides) (Result, []scan.Row, error) {
	res, err := o.ScanFullDetails(ctx, hostString, overrides)
	if err != nil {
		return Result{}, nil, err
	}
	history, err := o.repo.History(res.Row.SiteKey)
	if err != nil {
		return Result{}, nil, err
	}
	return res, history, nil
}

// ScanBatchFullDetails implements POST /api/v2/scanBatchFullDetails: per
// URL, as ScanFullDetails, with batchrunner's dedup and bounded
// concurrency.
func (o *Orchestrator) ScanBatchFullDetails(ctx context.Context, urls []string, overrides battery.Overrides) (map[string]batchrunner.Entry, error) {
	return o.batch.Run(ctx, urls, overrides)
}

// batchScanAdapter lets batchrunner.Runner drive ScanFullDetails (so each
// batch entry persists a summary row exactly like the single-URL
// endpoint) while exposing the plain (report, error) shape
// batchrunner.Scanner expects.
type batchScanAdapter struct{ orch *Orchestrator }

func (a batchScanAdapter) Scan(ctx context.Context, hostString string, overrides battery.Overrides) (grader.ScanReport, error) {
	res, err := a.orch.ScanFullDetails(ctx, hostString, overrides)
	if err != nil {
		return grader.ScanReport{}, err
	}
	return res.Report, nil
}

// persist always writes a new row.
func (o *Orchestrator) persist(siteKey string, report grader.ScanReport) (scan.Row, error) {
	row := scan.FromReport(siteKey, report, time.Now())
	return o.repo.Save(row)
}

// persistIfFresh only writes a new row when the report did not come from
// cache, avoiding a duplicate row for a cooldown- or cacheTimeForGet-hit —
// the latest persisted row is returned instead.
func (o *Orchestrator) persistIfFresh(siteKey string, report grader.ScanReport, fromCache bool) (scan.Row, error) {
	if fromCache {
		if row, ok, err := o.repo.Latest(siteKey); err != nil {
			return scan.Row{}, err
		} else if ok {
			return row, nil
		}
	}
	return o.persist(siteKey, report)
}
