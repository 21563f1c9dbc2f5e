package battery

import (
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

const (
	ExpectationReferrerPrivate = "referrer-policy-private"

	ReferrerPrivate           = "referrer-policy-private"
	ReferrerNoReferrerWhenDowngrade = "referrer-policy-no-referrer-when-downgrade"
	ReferrerSameOrigin        = "referrer-policy-same-origin"
	ReferrerNotImplemented    = "referrer-policy-not-implemented"
	ReferrerUnsafe            = "referrer-policy-unsafe"
	ReferrerHeaderInvalid     = "referrer-policy-header-invalid"
)

var referrerModifiers = map[string]int{
	ReferrerPrivate:                 0,
	ReferrerNoReferrerWhenDowngrade: 0,
	ReferrerSameOrigin:              0,
	ReferrerNotImplemented:          -5,
	ReferrerUnsafe:                  -10,
	ReferrerHeaderInvalid:           -10,
}

var privateReferrerValues = map[string]string{
	"no-referrer":              ReferrerPrivate,
	"same-origin":               ReferrerSameOrigin,
	"no-referrer-when-downgrade": ReferrerNoReferrerWhenDowngrade,
	"strict-origin":             ReferrerPrivate,
	"strict-origin-when-cross-origin": ReferrerPrivate,
}

var unsafeReferrerValues = map[string]bool{
	"unsafe-url": true, "origin-when-cross-origin": true, "origin": true,
}

func evalReferrerPolicy(req retriever.Requests, expectation string) TestResult {
	val := strings.ToLower(strings.TrimSpace(req.Headers.Get("Referrer-Policy")))
	if val == "" && len(req.Body) > 0 {
		val = strings.ToLower(strings.TrimSpace(retriever.MetaReferrer(req.Body)))
	}

	var result string
	switch {
	case val == "":
		result = ReferrerNotImplemented
	case unsafeReferrerValues[val]:
		result = ReferrerUnsafe
	default:
		if mapped, ok := privateReferrerValues[firstToken(val)]; ok {
			result = mapped
		} else {
			result = ReferrerHeaderInvalid
		}
	}

	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: referrerModifiers[result],
		Data:          map[string]string{"referrer-policy": val},
	}
}

// firstToken returns the last (most specific) policy token in a
// comma-separated fallback list, the value a conforming browser applies.
func firstToken(val string) string {
	parts := strings.Split(val, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}
