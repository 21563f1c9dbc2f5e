package battery

import (
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

const (
	ExpectationRedirectionToHTTPS = "redirection-to-https"

	RedirectionToHTTPS          = "redirection-to-https"
	RedirectionInvalidCert      = "redirection-invalid-cert"
	RedirectionNotToHTTPS       = "redirection-not-to-https"
	RedirectionOffHostFirst     = "redirection-off-host-from-http"
	RedirectionNotImplemented   = "redirection-not-implemented"
)

var redirectionModifiers = map[string]int{
	RedirectionToHTTPS:        0,
	RedirectionOffHostFirst:   -5,
	RedirectionInvalidCert:    -10,
	RedirectionNotToHTTPS:     -20,
	RedirectionNotImplemented: -20,
}

func evalRedirection(req retriever.Requests, expectation string) TestResult {
	status := req.HTTPStatusCode
	location := req.HTTPLocation

	if status == 0 {
		return redirectionResult(RedirectionNotImplemented, expectation, status, location)
	}

	if !isRedirectStatus(status) {
		return redirectionResult(RedirectionNotToHTTPS, expectation, status, location)
	}

	if !strings.HasPrefix(location, "https://") {
		return redirectionResult(RedirectionNotToHTTPS, expectation, status, location)
	}

	return redirectionResult(RedirectionToHTTPS, expectation, status, location)
}

func isRedirectStatus(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

func redirectionResult(result, expectation string, status int, location string) TestResult {
	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: redirectionModifiers[result],
		Data: map[string]interface{}{
			"http-status-code": status,
			"location":          location,
		},
	}
}
