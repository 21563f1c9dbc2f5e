package scanning

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/domain/scan"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/scancache"
	"github.com/secinto/httpobservatory/internal/site"
)

type stubScanner struct{ calls atomic.Int64 }

func (s *stubScanner) ScanSite(ctx context.Context, _ site.Site, _ battery.Overrides) grader.ScanReport {
	n := int(s.calls.Add(1))
	grade := grader.GradeA
	return grader.ScanReport{Score: &n, Grade: &grade, TestsQuantity: 10}
}

type memRepo struct{ rows []scan.Row }

func (m *memRepo) Save(row scan.Row) (scan.Row, error) {
	row.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *memRepo) Latest(siteKey string) (scan.Row, bool, error) {
	var latest scan.Row
	found := false
	for _, r := range m.rows {
		if r.SiteKey == siteKey {
			latest = r
			found = true
		}
	}
	return latest, found, nil
}

func (m *memRepo) History(siteKey string) ([]scan.Row, error) {
	var out []scan.Row
	for _, r := range m.rows {
		if r.SiteKey == siteKey {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) All() ([]scan.Row, error) { return m.rows, nil }

func newTestOrchestrator() (*Orchestrator, *stubScanner, *memRepo) {
	sc := &stubScanner{}
	cache := scancache.New(sc, time.Hour)
	repo := &memRepo{}
	o := New(cache, repo, time.Hour, 5, nil)
	o.resolver = stubResolver{}
	return o, sc, repo
}

type stubResolver struct{}

func (stubResolver) LookupHost(string) ([]string, error) { return []string{"203.0.113.1"}, nil }

func TestScanDoesNotDuplicateRowWithinCooldown(t *testing.T) {
	o, sc, repo := newTestOrchestrator()

	res1, err := o.Scan(context.Background(), "example.test", nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	res2, err := o.Scan(context.Background(), "example.test", nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if sc.calls.Load() != 1 {
		t.Fatalf("retrievals = %d, want 1 (second call within cooldown)", sc.calls.Load())
	}
	if !res2.FromCache {
		t.Fatalf("second Scan FromCache = false, want true")
	}
	if len(repo.rows) != 1 {
		t.Fatalf("persisted rows = %d, want 1 (cached calls reuse the existing row)", len(repo.rows))
	}
	if res1.Row.ID != res2.Row.ID {
		t.Fatalf("cached Scan returned a different row: %d vs %d", res1.Row.ID, res2.Row.ID)
	}
	if *res1.Report.Score != *res2.Report.Score {
		t.Fatalf("scores differ across cached calls")
	}
}

func TestScanFullDetailsAlwaysReturnsFreshReport(t *testing.T) {
	o, sc, _ := newTestOrchestrator()

	o.Scan(context.Background(), "example.test", nil)
	before := sc.calls.Load()

	res, err := o.ScanFullDetails(context.Background(), "example.test", nil)
	if err != nil {
		t.Fatalf("ScanFullDetails: %v", err)
	}
	after := sc.calls.Load()

	if after != before+1 {
		t.Fatalf("ScanFullDetails did not trigger a fresh retrieval: before=%d after=%d", before, after)
	}
	if res.Report.Score == nil {
		t.Fatalf("report has no score")
	}
}

func TestAnalyzeGetReturnsHistory(t *testing.T) {
	o, _, _ := newTestOrchestrator()

	o.Scan(context.Background(), "example.test", nil)
	_, history, err := o.AnalyzeGet(context.Background(), "example.test", nil)
	if err != nil {
		t.Fatalf("AnalyzeGet: %v", err)
	}
	if len(history) == 0 {
		t.Fatalf("history is empty, want at least the prior scan's row")
	}
}

func TestScanBatchFullDetailsPersistsPerEntry(t *testing.T) {
	o, _, repo := newTestOrchestrator()

	results, err := o.ScanBatchFullDetails(context.Background(), []string{"a.test", "b.test"}, nil)
	if err != nil {
		t.Fatalf("ScanBatchFullDetails: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, u := range []string{"a.test", "b.test"} {
		if !results[u].Success {
			t.Fatalf("entry %q not successful: %+v", u, results[u])
		}
	}
	if len(repo.rows) != 2 {
		t.Fatalf("persisted rows = %d, want 2", len(repo.rows))
	}
}
