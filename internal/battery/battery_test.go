package battery

import (
	"net/http"
	"testing"

	"github.com/secinto/httpobservatory/internal/hstspreload"
	"github.com/secinto/httpobservatory/internal/retriever"
)

// scenarioS1 builds the "perfectly configured static site" retriever
// harness used throughout §8's literal scenarios.
func scenarioS1() retriever.Requests {
	hdr := make(http.Header)
	hdr.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
	hdr.Set("Content-Security-Policy", "default-src 'none'; script-src 'self'; style-src 'self'; img-src 'self'; connect-src 'self'")
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("X-Frame-Options", "DENY")
	hdr.Set("Referrer-Policy", "no-referrer")
	return retriever.Requests{
		FinalURL:       "https://example.test/",
		StatusCode:     200,
		Headers:        hdr,
		HTTPStatusCode: 301,
		HTTPLocation:   "https://example.test/",
		Preload:        hstspreload.Verdict{Preloaded: true},
	}
}

func TestScenarioS1AllPass(t *testing.T) {
	req := scenarioS1()
	results := RunAll(req, nil)

	if len(results) != 10 {
		t.Fatalf("got %d tests, want 10", len(results))
	}

	passed, failed, score := 0, 0, 100
	for _, r := range results {
		if r.Pass {
			passed++
		} else {
			failed++
		}
		score += r.ScoreModifier
	}
	if failed != 0 {
		t.Fatalf("testsFailed = %d, want 0", failed)
	}
	if passed != 10 {
		t.Fatalf("testsPassed = %d, want 10", passed)
	}
	// Only the CSP no-unsafe bonus (+5 in cspModifiers) contributes above
	// the 100 baseline in this configuration.
	if score != 105 {
		t.Fatalf("score = %d, want 105", score)
	}
}

func TestScenarioS2MissingHSTS(t *testing.T) {
	req := scenarioS1()
	req.Headers.Del("Strict-Transport-Security")
	req.Preload = hstspreload.Verdict{}

	results := RunAll(req, nil)
	hsts := results["strict-transport-security"]
	if hsts.Pass {
		t.Fatalf("hsts.Pass = true, want false")
	}
	if hsts.Result != HSTSNotImplemented {
		t.Fatalf("hsts.Result = %q, want %q", hsts.Result, HSTSNotImplemented)
	}
	if hsts.ScoreModifier != -20 {
		t.Fatalf("hsts.ScoreModifier = %d, want -20", hsts.ScoreModifier)
	}
}

func TestScenarioS4CookieWithoutSecure(t *testing.T) {
	req := scenarioS1()
	req.Cookies = []retriever.Cookie{{
		Name: "SESSIONID", Value: "abc", HTTPOnly: true, SetOnScheme: "https",
	}}
	results := RunAll(req, nil)
	cookies := results["cookies"]
	if cookies.Pass {
		t.Fatalf("cookies.Pass = true, want false")
	}
	if cookies.Result != CookiesWithoutSecureFlag {
		t.Fatalf("cookies.Result = %q, want %q", cookies.Result, CookiesWithoutSecureFlag)
	}
}

func TestScenarioS5NoRedirectToHTTPS(t *testing.T) {
	req := scenarioS1()
	req.HTTPStatusCode = 200
	req.HTTPLocation = ""
	results := RunAll(req, nil)
	redir := results["redirection"]
	if redir.Pass {
		t.Fatalf("redirection.Pass = true, want false")
	}
	if redir.Result != RedirectionNotToHTTPS {
		t.Fatalf("redirection.Result = %q, want %q", redir.Result, RedirectionNotToHTTPS)
	}
}

func TestOverridesReplaceDefaultExpectation(t *testing.T) {
	req := scenarioS1()
	req.Headers.Del("X-Content-Type-Options")
	results := RunAll(req, Overrides{"x-content-type-options": XCTONotImplemented})
	xcto := results["x-content-type-options"]
	if !xcto.Pass {
		t.Fatalf("xcto.Pass = false, want true (expectation overridden)")
	}
}

// Keep an explicit tripwire so a forgotten probe update's effects are
// visible: every registered test name must appear in RunAll's output.
func TestRunAllCoversRegistry(t *testing.T) {
	results := RunAll(scenarioS1(), nil)
	for _, name := range Names() {
		if _, ok := results[name]; !ok {
			t.Fatalf("missing result for registered test %q", name)
		}
	}
}
