package battery

import (
	"strconv"
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

const (
	ExpectationHSTSMaxAgeSixMonths = "hsts-implemented-max-age-at-least-six-months"

	HSTSMaxAgeSixMonths  = "hsts-implemented-max-age-at-least-six-months"
	HSTSMaxAgeTooShort   = "hsts-implemented-max-age-less-than-six-months"
	HSTSPreloadNoHeader  = "hsts-preloaded-without-header"
	HSTSNotImplemented   = "hsts-not-implemented"
	HSTSHeaderInvalid    = "hsts-header-invalid"
	HSTSNotImplementedNoHTTPS = "hsts-not-implemented-no-https"
)

const sixMonthsSeconds = 15724800 // 182 days, the published Observatory threshold

var hstsModifiers = map[string]int{
	HSTSMaxAgeSixMonths:       0,
	HSTSMaxAgeTooShort:        -10,
	HSTSPreloadNoHeader:       -5,
	HSTSNotImplemented:        -20,
	HSTSHeaderInvalid:         -20,
	HSTSNotImplementedNoHTTPS: -20,
}

func evalHSTS(req retriever.Requests, expectation string) TestResult {
	data := map[string]interface{}{
		"preloaded": req.Preload.Preloaded,
	}
	// HPKP is deprecated and removed from browsers: a Public-Key-Pins header
	// is flagged here as a soft warning only, with no score effect.
	if pins := strings.TrimSpace(req.Headers.Get("Public-Key-Pins")); pins != "" {
		data["public-key-pins"] = pins
		data["public-key-pins-deprecated"] = true
	}

	if !strings.HasPrefix(req.FinalURL, "https://") {
		return hstsResult(HSTSNotImplementedNoHTTPS, expectation, data)
	}

	header := strings.TrimSpace(req.Headers.Get("Strict-Transport-Security"))
	if header == "" {
		if req.Preload.Preloaded {
			return hstsResult(HSTSPreloadNoHeader, expectation, data)
		}
		return hstsResult(HSTSNotImplemented, expectation, data)
	}

	maxAge, ok := parseHSTSMaxAge(header)
	if !ok {
		return hstsResult(HSTSHeaderInvalid, expectation, data)
	}
	data["max-age"] = maxAge

	if maxAge < sixMonthsSeconds {
		return hstsResult(HSTSMaxAgeTooShort, expectation, data)
	}
	return hstsResult(HSTSMaxAgeSixMonths, expectation, data)
}

func hstsResult(result, expectation string, data map[string]interface{}) TestResult {
	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: hstsModifiers[result],
		Data:          data,
	}
}

// parseHSTSMaxAge extracts the max-age directive value from a
// Strict-Transport-Security header value.
func parseHSTSMaxAge(header string) (int, bool) {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(strings.ToLower(part), "max-age=") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(part[8:]))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
