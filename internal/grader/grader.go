// Package grader reduces a battery of TestResults to a score and letter
// grade, and assembles the ScanReport the rest of the system persists and
// serves.
package grader

import (
	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/retriever"
	"github.com/secinto/httpobservatory/internal/shared/constants"
)

// Grade is one of the thirteen letters the rubric defines. A failed scan
// carries a nil *Grade rather than a Grade value.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeAMin  Grade = "A-"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeBMin  Grade = "B-"
	GradeCPlus Grade = "C+"
	GradeC     Grade = "C"
	GradeCMin  Grade = "C-"
	GradeDPlus Grade = "D+"
	GradeD     Grade = "D"
	GradeDMin  Grade = "D-"
	GradeF     Grade = "F"
)

// gradeThresholds is iterated high to low; the first threshold the score
// meets or exceeds wins.
var gradeThresholds = []struct {
	min   int
	grade Grade
}{
	{100, GradeAPlus}, {90, GradeA}, {85, GradeAMin},
	{80, GradeBPlus}, {70, GradeB}, {65, GradeBMin},
	{60, GradeCPlus}, {50, GradeC}, {45, GradeCMin},
	{40, GradeDPlus}, {30, GradeD}, {25, GradeDMin},
}

// ScanReport is the whole of a scan's outcome, returned by value and never
// mutated once built.
type ScanReport struct {
	AlgorithmVersion int                        `json:"algorithm_version"`
	Grade            *Grade                     `json:"grade"`
	Score            *int                       `json:"score"`
	StatusCode       int                        `json:"status_code"`
	Error            string                     `json:"error,omitempty"`
	TestsPassed      int                        `json:"tests_passed"`
	TestsFailed      int                        `json:"tests_failed"`
	TestsQuantity    int                        `json:"tests_quantity"`
	ResponseHeaders  map[string][]string        `json:"response_headers,omitempty"`
	Tests            map[string]battery.TestResult `json:"tests"`
}

// ScoreAndGrade reduces a completed test battery to a clamped score and the
// grade the rubric assigns it.
func ScoreAndGrade(results map[string]battery.TestResult) (int, Grade) {
	score := constants.StartingScore
	for _, r := range results {
		score += r.ScoreModifier
	}
	if score < constants.MinScore {
		score = constants.MinScore
	}
	if score > constants.MaxScore {
		score = constants.MaxScore
	}
	return score, gradeFor(score)
}

func gradeFor(score int) Grade {
	for _, t := range gradeThresholds {
		if score >= t.min {
			return t.grade
		}
	}
	return GradeF
}

// Build assembles a successful ScanReport from a Requests snapshot and its
// evaluated test battery.
func Build(req retriever.Requests, results map[string]battery.TestResult, algorithmVersion int) ScanReport {
	score, grade := ScoreAndGrade(results)

	passed, failed := 0, 0
	for _, r := range results {
		if r.Pass {
			passed++
		} else {
			failed++
		}
	}

	headers := map[string][]string{}
	for k, v := range req.Headers {
		headers[k] = v
	}

	stripScoreDescriptions(results)

	return ScanReport{
		AlgorithmVersion: algorithmVersion,
		Grade:            &grade,
		Score:            &score,
		StatusCode:       req.StatusCode,
		TestsPassed:      passed,
		TestsFailed:      failed,
		TestsQuantity:    passed + failed,
		ResponseHeaders:  headers,
		Tests:            results,
	}
}

// BuildFailure assembles the short-circuited report a retrieval failure
// produces: null score and grade, the error set, and an empty tests map.
func BuildFailure(algorithmVersion int, errKind string) ScanReport {
	return ScanReport{
		AlgorithmVersion: algorithmVersion,
		Grade:            nil,
		Score:            nil,
		Error:            errKind,
		Tests:            map[string]battery.TestResult{},
	}
}

// stripScoreDescriptions clears the human-readable score description
// before API emission, per the data model's note that it is "stripped
// before API emission."
func stripScoreDescriptions(results map[string]battery.TestResult) {
	for k, r := range results {
		r.ScoreDescription = ""
		results[k] = r
	}
}
