// Package scan holds the persisted-row aggregate and repository contract
// the API and persistence layers share. The scanner core in
// internal/grader never depends on this package: a Row is built from a
// ScanReport by the application layer, not the other way around.
package scan

import (
	"time"

	"github.com/secinto/httpobservatory/internal/grader"
)

// Row is the summary persisted per §6: full test results are never
// persisted, only the reduction. Detail endpoints re-scan to populate
// fullDetails.
type Row struct {
	ID               int64      `json:"id"`
	SiteKey          string     `json:"site_key"`
	StartTime        time.Time  `json:"start_time"`
	AlgorithmVersion int        `json:"algorithm_version"`
	Grade            *grader.Grade `json:"grade"`
	Score            *int       `json:"score"`
	StatusCode       int        `json:"status_code"`
	Error            string     `json:"error,omitempty"`
	TestsPassed      int        `json:"tests_passed"`
	TestsFailed      int        `json:"tests_failed"`
	TestsQuantity    int        `json:"tests_quantity"`
}

// FromReport projects a graded (or short-circuited) ScanReport into the
// row shape that gets persisted.
func FromReport(siteKey string, report grader.ScanReport, startTime time.Time) Row {
	return Row{
		SiteKey:          siteKey,
		StartTime:        startTime,
		AlgorithmVersion: report.AlgorithmVersion,
		Grade:            report.Grade,
		Score:            report.Score,
		StatusCode:       report.StatusCode,
		Error:            report.Error,
		TestsPassed:      report.TestsPassed,
		TestsFailed:      report.TestsFailed,
		TestsQuantity:    report.TestsQuantity,
	}
}

// Repository persists and retrieves Rows. Implementations must be safe
// for concurrent use.
type Repository interface {
	// Save assigns a new ID and persists row, returning the stored copy.
	Save(row Row) (Row, error)
	// Latest returns the most recently saved row for siteKey.
	Latest(siteKey string) (Row, bool, error)
	// History returns every row for siteKey, oldest first.
	History(siteKey string) ([]Row, error)
	// All returns every row across every site, for the statistics surface.
	All() ([]Row, error)
}
