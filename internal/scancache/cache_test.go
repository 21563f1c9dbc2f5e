package scancache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/site"
)

// countingScanner counts real retrievals and returns a score that
// increments per call, so tests can detect whether a retrieval actually
// ran.
type countingScanner struct {
	calls atomic.Int64
	delay time.Duration
}

func (s *countingScanner) ScanSite(ctx context.Context, _ site.Site, overrides battery.Overrides) grader.ScanReport {
	n := int(s.calls.Add(1))
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	score := n
	grade := grader.GradeA
	return grader.ScanReport{Score: &score, Grade: &grade}
}

func mustSite(t *testing.T, raw string) site.Site {
	t.Helper()
	s, err := site.FromString(raw)
	if err != nil {
		t.Fatalf("FromString(%q): %v", raw, err)
	}
	return s
}

func TestCooldownAvoidsRepeatRetrieval(t *testing.T) {
	sc := &countingScanner{}
	c := New(sc, time.Hour)

	s := mustSite(t, "example.test")
	r1, fromCache1 := c.Scan(context.Background(), s, nil)
	r2, fromCache2 := c.Scan(context.Background(), s, nil)

	if fromCache1 {
		t.Fatalf("first scan reported fromCache = true, want false")
	}
	if !fromCache2 {
		t.Fatalf("second scan within cooldown reported fromCache = false, want true")
	}
	if *r1.Score != *r2.Score {
		t.Fatalf("scores differ across cooldown window: %d vs %d", *r1.Score, *r2.Score)
	}
	if sc.calls.Load() != 1 {
		t.Fatalf("retrievals = %d, want 1", sc.calls.Load())
	}
}

func TestSingleFlightCollapsesConcurrentCallers(t *testing.T) {
	sc := &countingScanner{delay: 20 * time.Millisecond}
	c := New(sc, time.Hour)
	s := mustSite(t, "example.test")

	const n = 10
	results := make([]grader.ScanReport, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _ := c.Scan(context.Background(), s, nil)
			results[i] = r
		}(i)
	}
	wg.Wait()

	if sc.calls.Load() != 1 {
		t.Fatalf("retrievals = %d, want exactly 1", sc.calls.Load())
	}
	for i := 1; i < n; i++ {
		if *results[i].Score != *results[0].Score {
			t.Fatalf("caller %d saw a different row than caller 0", i)
		}
	}
}

// cancellingThenOKScanner returns a scan-cancelled report on its first
// call and a real report on every call after, so a test can tell
// whether the cancelled result was ever written to the cache.
type cancellingThenOKScanner struct{ calls atomic.Int64 }

func (s *cancellingThenOKScanner) ScanSite(ctx context.Context, _ site.Site, overrides battery.Overrides) grader.ScanReport {
	n := int(s.calls.Add(1))
	if n == 1 {
		return grader.ScanReport{Error: "scan-cancelled"}
	}
	score := n
	grade := grader.GradeA
	return grader.ScanReport{Score: &score, Grade: &grade}
}

func TestCancelledScanIsNotCached(t *testing.T) {
	sc := &cancellingThenOKScanner{}
	c := New(sc, time.Hour)
	s := mustSite(t, "example.test")

	r1, fromCache1 := c.Scan(context.Background(), s, nil)
	if fromCache1 {
		t.Fatalf("first scan reported fromCache = true, want false")
	}
	if r1.Error != "scan-cancelled" {
		t.Fatalf("first scan error = %q, want scan-cancelled", r1.Error)
	}
	if _, _, ok := c.Get(s.Key()); ok {
		t.Fatalf("a cancelled scan must not populate the cache")
	}

	r2, fromCache2 := c.Scan(context.Background(), s, nil)
	if fromCache2 {
		t.Fatalf("second scan reported fromCache = true, want a fresh retrieval")
	}
	if r2.Error != "" {
		t.Fatalf("second scan error = %q, want none", r2.Error)
	}
	if sc.calls.Load() != 2 {
		t.Fatalf("retrievals = %d, want 2 (the cancelled call must not be reused)", sc.calls.Load())
	}
}

func TestDistinctKeysScanIndependently(t *testing.T) {
	sc := &countingScanner{}
	c := New(sc, time.Hour)

	c.Scan(context.Background(), mustSite(t, "a.test"), nil)
	c.Scan(context.Background(), mustSite(t, "b.test"), nil)

	if sc.calls.Load() != 2 {
		t.Fatalf("retrievals = %d, want 2 (one per distinct siteKey)", sc.calls.Load())
	}
}
