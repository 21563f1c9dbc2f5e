package battery

import (
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

const (
	ExpectationCORSNotImplemented = "cross-origin-resource-sharing-not-implemented"

	CORSNotImplemented          = "cross-origin-resource-sharing-not-implemented"
	CORSImplementedWithPublicAccess = "cross-origin-resource-sharing-implemented-with-public-access"
	CORSImplementedWithRestrictedAccess = "cross-origin-resource-sharing-implemented-with-restricted-access"
	CORSImplementedWithUniversalAccess = "cross-origin-resource-sharing-implemented-with-universal-access"
)

var corsModifiers = map[string]int{
	CORSNotImplemented:                  0,
	CORSImplementedWithRestrictedAccess: 0,
	CORSImplementedWithPublicAccess:     -5,
	CORSImplementedWithUniversalAccess:  -50,
}

func evalCORS(req retriever.Requests, expectation string) TestResult {
	acao := strings.TrimSpace(req.Headers.Get("Access-Control-Allow-Origin"))
	acac := strings.EqualFold(strings.TrimSpace(req.Headers.Get("Access-Control-Allow-Credentials")), "true")

	var result string
	switch {
	case acao == "":
		result = CORSNotImplemented
	case acao == "*" && acac:
		result = CORSImplementedWithUniversalAccess
	case acao == "*":
		result = CORSImplementedWithPublicAccess
	default:
		result = CORSImplementedWithRestrictedAccess
	}

	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: corsModifiers[result],
		Data: map[string]interface{}{
			"access-control-allow-origin":      acao,
			"access-control-allow-credentials": acac,
		},
	}
}
