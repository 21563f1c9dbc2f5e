package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/secinto/httpobservatory/internal/application/scanning"
	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/batchrunner"
	"github.com/secinto/httpobservatory/internal/domain/scan"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/persistence"
	secerrors "github.com/secinto/httpobservatory/internal/shared/errors"
)

type stubOrchestrator struct {
	result  scanning.Result
	history []scan.Row
	err     error
	batch   map[string]batchrunner.Entry
}

func (s stubOrchestrator) Scan(ctx context.Context, host string, overrides battery.Overrides) (scanning.Result, error) {
	return s.result, s.err
}

func (s stubOrchestrator) ScanFullDetails(ctx context.Context, host string, overrides battery.Overrides) (scanning.Result, error) {
	return s.result, s.err
}

func (s stubOrchestrator) AnalyzeGet(ctx context.Context, host string, overrides battery.Overrides) (scanning.Result, []scan.Row, error) {
	return s.result, s.history, s.err
}

func (s stubOrchestrator) AnalyzePost(ctx context.Context, host string, overrides battery.Overrides) (scanning.Result, []scan.Row, error) {
	return s.result, s.history, s.err
}

func (s stubOrchestrator) ScanBatchFullDetails(ctx context.Context, urls []string, overrides battery.Overrides) (map[string]batchrunner.Entry, error) {
	return s.batch, s.err
}

type stubStats struct {
	stats persistence.Stats
	err   error
}

func (s stubStats) Stats() (persistence.Stats, error) { return s.stats, s.err }

func successResult(siteKey string) scanning.Result {
	score := 90
	grade := grader.GradeA
	return scanning.Result{
		Row: scan.Row{SiteKey: siteKey, Grade: &grade, Score: &score},
		Report: grader.ScanReport{
			AlgorithmVersion: 5,
			Grade:            &grade,
			Score:            &score,
			Tests:            map[string]battery.TestResult{},
		},
	}
}

func TestHandleScanReturnsDetailsURL(t *testing.T) {
	srv := NewServer(Config{
		Orchestrator: stubOrchestrator{result: successResult("example.com")},
		BaseURL:      "http://localhost:8080",
	})

	body := bytes.NewBufferString(`{"host":"example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/scan", body)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["details_url"] != "http://localhost:8080/api/v2/scanFullDetails?host=example.com" {
		t.Fatalf("details_url = %v", out["details_url"])
	}
	if out["grade"] != "A" {
		t.Fatalf("grade = %v", out["grade"])
	}
}

func TestHandleScanRejectsMissingHost(t *testing.T) {
	srv := NewServer(Config{Orchestrator: stubOrchestrator{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v2/scan", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHandleScanMapsValidationErrorTo422(t *testing.T) {
	srv := NewServer(Config{Orchestrator: stubOrchestrator{err: secerrors.ErrInvalidHostname}})

	req := httptest.NewRequest(http.MethodPost, "/api/v2/scan", bytes.NewBufferString(`{"host":"!!!"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHandleAnalyzeGetRequiresNoAuth(t *testing.T) {
	srv := NewServer(Config{
		Orchestrator: stubOrchestrator{result: successResult("example.com"), history: []scan.Row{{SiteKey: "example.com"}}},
		AuthToken:    "supersecret",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v2/analyze?host=example.com", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["history"]; !ok {
		t.Fatalf("expected history field, got %v", out)
	}
}

func TestHandleScanRequiresAuthWhenConfigured(t *testing.T) {
	srv := NewServer(Config{
		Orchestrator: stubOrchestrator{result: successResult("example.com")},
		AuthToken:    "supersecret",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v2/scan", bytes.NewBufferString(`{"host":"example.com"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleScanBatchRejectsEmptyBody(t *testing.T) {
	srv := NewServer(Config{Orchestrator: stubOrchestrator{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v2/scanBatchFullDetails", bytes.NewBufferString(`{"urls":[]}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHandleScanBatchReturnsEntries(t *testing.T) {
	report := successResult("a.example").Report
	srv := NewServer(Config{Orchestrator: stubOrchestrator{
		batch: map[string]batchrunner.Entry{
			"a.example": {Success: true, Report: &report},
		},
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/v2/scanBatchFullDetails", bytes.NewBufferString(`{"urls":["a.example"]}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var decoded batchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if decoded.JobID == "" {
		t.Error("expected a non-empty job_id")
	}
	if _, ok := decoded.Results["a.example"]; !ok {
		t.Error("expected a.example in results")
	}
}

func TestHandleStatsServesAggregates(t *testing.T) {
	srv := NewServer(Config{
		Orchestrator: stubOrchestrator{},
		Stats:        stubStats{stats: persistence.Stats{ScanCount: 3, SiteCount: 2, GradeDistribution: map[grader.Grade]int{grader.GradeA: 2}}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v2/stats", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out persistence.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ScanCount != 3 || out.SiteCount != 2 {
		t.Fatalf("stats = %+v", out)
	}
}

func TestHandleHealthOK(t *testing.T) {
	srv := NewServer(Config{Orchestrator: stubOrchestrator{}})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(Config{Orchestrator: stubOrchestrator{}})
	req := httptest.NewRequest(http.MethodDelete, "/api/v2/scan", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
