package battery

import (
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

const (
	ExpectationXCTONosniff = "x-content-type-options-nosniff"

	XCTONosniff       = "x-content-type-options-nosniff"
	XCTONotImplemented = "x-content-type-options-not-implemented"
	XCTOHeaderInvalid  = "x-content-type-options-header-invalid"
)

var xctoModifiers = map[string]int{
	XCTONosniff:        0,
	XCTONotImplemented: -5,
	XCTOHeaderInvalid:  -5,
}

func evalXCTO(req retriever.Requests, expectation string) TestResult {
	val := strings.ToLower(strings.TrimSpace(req.Headers.Get("X-Content-Type-Options")))

	var result string
	switch val {
	case "":
		result = XCTONotImplemented
	case "nosniff":
		result = XCTONosniff
	default:
		result = XCTOHeaderInvalid
	}

	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: xctoModifiers[result],
		Data:          map[string]string{"x-content-type-options": val},
	}
}
