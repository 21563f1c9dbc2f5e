package battery

import (
	"net/url"
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

const (
	ExpectationSRIImplementedSecure = "sri-implemented-and-external-scripts-loaded-securely"

	SRIImplementedAndExternalSecure    = "sri-implemented-and-external-scripts-loaded-securely"
	SRIImplementedButExternalInsecure  = "sri-implemented-but-external-scripts-loaded-insecurely"
	SRINotImplementedButNoExternal     = "sri-not-implemented-but-no-scripts-loaded"
	SRINotImplementedButExternalSecure = "sri-not-implemented-but-external-scripts-loaded-securely"
	SRINotImplementedAndExternalInsecure = "sri-not-implemented-and-external-scripts-loaded-insecurely"
	SRINotImplementedResponseNotHTML   = "sri-not-implemented-response-not-html"
)

var sriModifiers = map[string]int{
	SRIImplementedAndExternalSecure:      0,
	SRINotImplementedButNoExternal:       0,
	SRINotImplementedResponseNotHTML:     0,
	SRINotImplementedButExternalSecure:   -5,
	SRIImplementedButExternalInsecure:    -20,
	SRINotImplementedAndExternalInsecure: -50,
}

func evalSRI(req retriever.Requests, expectation string) TestResult {
	if !looksLikeHTML(req.Headers.Get("Content-Type")) {
		return sriResult(SRINotImplementedResponseNotHTML, expectation, nil)
	}

	scripts := retriever.Scripts(req.Body)
	if len(scripts) == 0 {
		return sriResult(SRINotImplementedButNoExternal, expectation, nil)
	}

	finalHost := hostOf(req.FinalURL)
	var external []retriever.Script
	for _, s := range scripts {
		if isExternal(s.Src, finalHost) {
			external = append(external, s)
		}
	}
	if len(external) == 0 {
		return sriResult(SRINotImplementedButNoExternal, expectation, scripts)
	}

	allSecure := true
	allIntegrity := true
	for _, s := range external {
		if strings.HasPrefix(s.Src, "http://") {
			allSecure = false
		}
		if s.Integrity == "" {
			allIntegrity = false
		}
	}

	var result string
	switch {
	case allIntegrity && allSecure:
		result = SRIImplementedAndExternalSecure
	case allIntegrity && !allSecure:
		result = SRIImplementedButExternalInsecure
	case !allIntegrity && allSecure:
		result = SRINotImplementedButExternalSecure
	default:
		result = SRINotImplementedAndExternalInsecure
	}

	return sriResult(result, expectation, external)
}

func sriResult(result, expectation string, data interface{}) TestResult {
	pass := result == expectation
	// Explicit overrides: nothing external to secure, or not HTML at all,
	// is a neutral outcome rather than a failure to meet the default
	// expectation of securely-loaded external scripts.
	if result == SRINotImplementedButNoExternal || result == SRINotImplementedResponseNotHTML {
		pass = true
	}
	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          pass,
		ScoreModifier: sriModifiers[result],
		Data:          data,
	}
}

func looksLikeHTML(contentType string) bool {
	if contentType == "" {
		return true // probe may not have sent Content-Type; don't penalize
	}
	return strings.Contains(strings.ToLower(contentType), "html")
}

func hostOf(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func isExternal(src, finalHost string) bool {
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	if !strings.Contains(src, "://") {
		return false // relative path, same origin by definition
	}
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return u.Hostname() != "" && u.Hostname() != finalHost
}
