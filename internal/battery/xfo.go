package battery

import (
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

const (
	ExpectationXFOSameoriginOrDeny = "x-frame-options-sameorigin-or-deny"

	XFOSameoriginOrDeny           = "x-frame-options-sameorigin-or-deny"
	XFOImplementedViaCSP          = "x-frame-options-implemented-via-csp"
	XFONotImplemented             = "x-frame-options-not-implemented"
	XFOHeaderInvalid              = "x-frame-options-header-invalid"
	XFOAllowFromOrigin            = "x-frame-options-allow-from-origin"
)

var xfoModifiers = map[string]int{
	XFOSameoriginOrDeny:  0,
	XFOImplementedViaCSP: 0,
	XFOAllowFromOrigin:   -10,
	XFONotImplemented:    -20,
	XFOHeaderInvalid:      -20,
}

func evalXFO(req retriever.Requests, expectation string) TestResult {
	val := strings.ToUpper(strings.TrimSpace(req.Headers.Get("X-Frame-Options")))

	if val == "" {
		if cspHasFrameAncestors(req) {
			return xfoResult(XFOImplementedViaCSP, expectation, val)
		}
		return xfoResult(XFONotImplemented, expectation, val)
	}

	switch {
	case val == "DENY" || val == "SAMEORIGIN":
		return xfoResult(XFOSameoriginOrDeny, expectation, val)
	case strings.HasPrefix(val, "ALLOW-FROM"):
		return xfoResult(XFOAllowFromOrigin, expectation, val)
	default:
		return xfoResult(XFOHeaderInvalid, expectation, val)
	}
}

// cspHasFrameAncestors reconciles X-Frame-Options absence against CSP's
// frame-ancestors directive, which supersedes it in modern browsers.
func cspHasFrameAncestors(req retriever.Requests) bool {
	headerVal := req.Headers.Get("Content-Security-Policy")
	if headerVal == "" {
		return false
	}
	directives := parseCSPDirectives(headerVal)
	_, ok := directives["frame-ancestors"]
	return ok
}

func xfoResult(result, expectation, raw string) TestResult {
	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: xfoModifiers[result],
		Data:          map[string]string{"x-frame-options": raw},
	}
}
