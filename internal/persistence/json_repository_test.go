package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/secinto/httpobservatory/internal/domain/scan"
	"github.com/secinto/httpobservatory/internal/grader"
)

func TestSaveAndLatestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(filepath.Join(dir, "rows.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	score := 100
	grade := grader.GradeA
	saved, err := repo.Save(scan.Row{
		SiteKey:          "example.test",
		StartTime:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		AlgorithmVersion: 5,
		Grade:            &grade,
		Score:            &score,
		TestsPassed:      9,
		TestsFailed:      1,
		TestsQuantity:    10,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID != 1 {
		t.Fatalf("ID = %d, want 1", saved.ID)
	}

	latest, ok, err := repo.Latest("example.test")
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if *latest.Score != 100 {
		t.Fatalf("Score = %d, want 100", *latest.Score)
	}
}

func TestLatestReturnsMostRecentRow(t *testing.T) {
	dir := t.TempDir()
	repo, _ := Open(filepath.Join(dir, "rows.json"))

	repo.Save(scan.Row{SiteKey: "a.test", StartTime: time.Now()})
	second, _ := repo.Save(scan.Row{SiteKey: "a.test", StartTime: time.Now()})

	latest, ok, err := repo.Latest("a.test")
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if latest.ID != second.ID {
		t.Fatalf("Latest ID = %d, want %d", latest.ID, second.ID)
	}
}

func TestRepositorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.json")

	repo, _ := Open(path)
	repo.Save(scan.Row{SiteKey: "example.test", StartTime: time.Now()})

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rows, err := reopened.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
}

func TestStatsAggregatesGradeDistribution(t *testing.T) {
	dir := t.TempDir()
	repo, _ := Open(filepath.Join(dir, "rows.json"))

	a, b := grader.GradeA, grader.GradeB
	repo.Save(scan.Row{SiteKey: "a.test", Grade: &a})
	repo.Save(scan.Row{SiteKey: "b.test", Grade: &b})
	repo.Save(scan.Row{SiteKey: "a.test", Grade: &a})

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ScanCount != 3 {
		t.Fatalf("ScanCount = %d, want 3", stats.ScanCount)
	}
	if stats.SiteCount != 2 {
		t.Fatalf("SiteCount = %d, want 2", stats.SiteCount)
	}
	if stats.GradeDistribution[grader.GradeA] != 2 {
		t.Fatalf("GradeDistribution[A] = %d, want 2", stats.GradeDistribution[grader.GradeA])
	}
}
