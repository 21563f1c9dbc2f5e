package batchrunner

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/grader"
	secerrors "github.com/secinto/httpobservatory/internal/shared/errors"
)

type stubScanner struct {
	calls     atomic.Int64
	failHosts map[string]error
}

func (s *stubScanner) Scan(ctx context.Context, hostString string, overrides battery.Overrides) (grader.ScanReport, error) {
	s.calls.Add(1)
	if err, ok := s.failHosts[hostString]; ok {
		return grader.ScanReport{}, err
	}
	score := 100
	grade := grader.GradeA
	return grader.ScanReport{Score: &score, Grade: &grade}, nil
}

func TestBatchDedupCollapsesCaseAndWhitespaceVariants(t *testing.T) {
	sc := &stubScanner{}
	r := New(sc, 5, nil)

	urls := []string{"Example.test", " example.test ", "EXAMPLE.TEST", "other.test"}
	results, err := r.Run(context.Background(), urls, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sc.calls.Load() != 2 {
		t.Fatalf("scan calls = %d, want 2 (one per distinct canonical form)", sc.calls.Load())
	}
	if len(results) != len(urls) {
		t.Fatalf("results has %d entries, want one per original input (%d)", len(results), len(urls))
	}
	for _, u := range urls {
		if e, ok := results[strings.TrimSpace(u)]; !ok || !e.Success {
			t.Fatalf("missing or failed entry for %q: %+v", u, e)
		}
	}
}

func TestBatchEntryFailureDoesNotAbortOthers(t *testing.T) {
	sc := &stubScanner{failHosts: map[string]error{"bad.test": secerrors.ErrInvalidHostname}}
	r := New(sc, 5, nil)

	results, err := r.Run(context.Background(), []string{"good.test", "bad.test"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results["good.test"].Success {
		t.Fatalf("good.test entry = %+v, want success", results["good.test"])
	}
	bad := results["bad.test"]
	if bad.Success {
		t.Fatalf("bad.test entry reported success, want failure")
	}
	if bad.Error != "invalid-hostname" {
		t.Fatalf("bad.test error = %q, want invalid-hostname", bad.Error)
	}
}

func TestBatchRejectsOversizedInput(t *testing.T) {
	sc := &stubScanner{}
	r := New(sc, 5, nil)

	urls := make([]string, 11)
	for i := range urls {
		urls[i] = "distinct-host-" + string(rune('a'+i)) + ".test"
	}
	_, err := r.Run(context.Background(), urls, nil)
	if err != secerrors.ErrBatchTooLarge {
		t.Fatalf("err = %v, want ErrBatchTooLarge", err)
	}
}

func TestBatchRejectsEmptyInput(t *testing.T) {
	r := New(&stubScanner{}, 5, nil)
	_, err := r.Run(context.Background(), nil, nil)
	if err != secerrors.ErrEmptyBatch {
		t.Fatalf("err = %v, want ErrEmptyBatch", err)
	}
}
