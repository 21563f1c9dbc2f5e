package battery

import (
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

// Cross-Origin-Resource-Policy has no browser-consensus default, so its
// configured default is informational only: present (any value) or absent,
// with the modifier frozen at 0 either way until a consensus emerges. See
// the supplemented-feature note for why this test exists despite that.
const (
	ExpectationCORPConfiguredDefault = "corp-not-implemented"

	CORPSameOrigin    = "corp-implemented-with-same-origin"
	CORPSameSite      = "corp-implemented-with-same-site"
	CORPCrossOrigin   = "corp-implemented-with-cross-origin"
	CORPNotImplemented = "corp-not-implemented"
)

var corpModifiers = map[string]int{
	CORPSameOrigin:      0,
	CORPSameSite:        0,
	CORPCrossOrigin:      0,
	CORPNotImplemented:  0,
}

func evalCORP(req retriever.Requests, expectation string) TestResult {
	val := strings.ToLower(strings.TrimSpace(req.Headers.Get("Cross-Origin-Resource-Policy")))

	var result string
	switch val {
	case "same-origin":
		result = CORPSameOrigin
	case "same-site":
		result = CORPSameSite
	case "cross-origin":
		result = CORPCrossOrigin
	default:
		result = CORPNotImplemented
	}

	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: corpModifiers[result],
		Data:          map[string]string{"cross-origin-resource-policy": val},
	}
}
