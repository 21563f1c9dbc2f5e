package battery

import (
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

// CSP result enum, per §4.3.
const (
	ExpectationCSPNoUnsafe = "csp-implemented-with-no-unsafe"

	CSPImplementedNoUnsafe                     = "csp-implemented-with-no-unsafe"
	CSPImplementedUnsafeInline                 = "csp-implemented-with-unsafe-inline"
	CSPImplementedUnsafeEval                   = "csp-implemented-with-unsafe-eval"
	CSPImplementedUnsafeInlineStyleOnly        = "csp-implemented-with-unsafe-inline-in-style-src-only"
	CSPImplementedInsecureScheme               = "csp-implemented-with-insecure-scheme"
	CSPImplementedNoDefaultOrScriptSrc         = "csp-implemented-but-no-default-src-or-script-src"
	CSPImplementedInsecureSchemeInPassiveOnly  = "csp-implemented-with-insecure-scheme-in-passive-content-only"
	CSPNotImplemented                          = "csp-not-implemented"
	CSPHeaderInvalid                           = "csp-header-invalid"
)

// cspModifiers maps every possible result to its score delta. Frozen here,
// the single place the design notes call for, and exercised by golden
// scenario tests.
var cspModifiers = map[string]int{
	CSPImplementedNoUnsafe:                    5,
	CSPImplementedUnsafeInlineStyleOnly:        0,
	CSPImplementedInsecureSchemeInPassiveOnly:  -5,
	CSPImplementedNoDefaultOrScriptSrc:         -10,
	CSPImplementedInsecureScheme:               -20,
	CSPImplementedUnsafeInline:                 -20,
	CSPImplementedUnsafeEval:                   -10,
	CSPNotImplemented:                          -25,
	CSPHeaderInvalid:                           -25,
}

// passiveContentDirectives are directives whose source expressions affect
// only passive content (images, media) rather than active scripts.
var passiveContentDirectives = map[string]bool{
	"img-src": true, "media-src": true, "font-src": true,
}

// Policy is a map from directive name to an ordered set of source
// expressions, plus provenance. It is recorded as the CSP test's data so
// callers can audit the classification.
type Policy struct {
	Directives map[string][]string
	Source     string // "header", "meta", or "header+meta"
}

func evalCSP(req retriever.Requests, expectation string) TestResult {
	headerVal := strings.TrimSpace(req.Headers.Get("Content-Security-Policy"))
	metaVal := ""
	if len(req.Body) > 0 {
		metaVal = strings.TrimSpace(retriever.MetaCSP(req.Body))
	}

	if headerVal == "" && metaVal == "" {
		return buildCSPResult(CSPNotImplemented, expectation, nil)
	}

	policy, invalid := mergePolicies(headerVal, metaVal)
	if invalid {
		return buildCSPResult(CSPHeaderInvalid, expectation, policy)
	}

	result := classify(policy)
	return buildCSPResult(result, expectation, policy)
}

func buildCSPResult(result, expectation string, policy *Policy) TestResult {
	mod, ok := cspModifiers[result]
	if !ok {
		mod = 0
	}
	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: mod,
		Data:          policy,
	}
}

// mergePolicies normalizes and merges header- and meta-delivered CSP source
// text into a single effective policy, recording which source contributed
// which directive. invalid is true when non-empty header text parses to no
// directive, whatever the meta policy holds; a meta policy that parses to
// no directive is ignored rather than reported invalid.
func mergePolicies(headerVal, metaVal string) (*Policy, bool) {
	p := &Policy{Directives: map[string][]string{}}
	var sources []string

	if headerVal != "" {
		if d := parseCSPDirectives(headerVal); len(d) > 0 {
			mergeInto(p.Directives, d)
			sources = append(sources, "header")
		} else {
			return p, true
		}
	}
	if metaVal != "" {
		if d := parseCSPDirectives(metaVal); len(d) > 0 {
			mergeInto(p.Directives, d)
			sources = append(sources, "meta")
		}
	}
	p.Source = strings.Join(sources, "+")
	return p, false
}

func mergeInto(dst, src map[string][]string) {
	for k, v := range src {
		dst[k] = append(dst[k], v...)
	}
}

// parseCSPDirectives splits policy text on ';' then whitespace, matching
// the grammar every CSP-aware user agent uses.
func parseCSPDirectives(policyText string) map[string][]string {
	out := map[string][]string{}
	for _, directive := range strings.Split(policyText, ";") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}
		fields := strings.Fields(directive)
		if len(fields) == 0 {
			continue
		}
		name := strings.ToLower(fields[0])
		out[name] = append(out[name], fields[1:]...)
	}
	return out
}

// sources returns the effective source list for a directive, resolving the
// default-src fallback when the directive itself is absent.
func (p *Policy) sources(directive string) ([]string, bool) {
	if v, ok := p.Directives[directive]; ok {
		return v, true
	}
	if v, ok := p.Directives["default-src"]; ok {
		return v, true
	}
	return nil, false
}

func hasToken(values []string, token string) bool {
	for _, v := range values {
		if v == token {
			return true
		}
	}
	return false
}

func hasInsecureScheme(values []string) bool {
	for _, v := range values {
		if strings.HasPrefix(v, "http:") || v == "*" {
			return true
		}
	}
	return false
}

// classify runs the prioritized predicate list from most to least severe,
// the first match wins.
func classify(p *Policy) string {
	_, hasDefault := p.Directives["default-src"]
	_, hasScript := p.Directives["script-src"]
	if !hasDefault && !hasScript {
		return CSPImplementedNoDefaultOrScriptSrc
	}

	scriptSrc, _ := p.sources("script-src")
	styleSrc, _ := p.sources("style-src")

	if hasToken(scriptSrc, "'unsafe-inline'") {
		return CSPImplementedUnsafeInline
	}
	if hasToken(scriptSrc, "'unsafe-eval'") {
		return CSPImplementedUnsafeEval
	}
	if hasInsecureScheme(scriptSrc) {
		return CSPImplementedInsecureScheme
	}

	if hasToken(styleSrc, "'unsafe-inline'") {
		return CSPImplementedUnsafeInlineStyleOnly
	}

	insecurePassiveOnly := false
	for directive := range passiveContentDirectives {
		if v, ok := p.Directives[directive]; ok && hasInsecureScheme(v) {
			insecurePassiveOnly = true
		}
	}
	if insecurePassiveOnly {
		return CSPImplementedInsecureSchemeInPassiveOnly
	}

	return CSPImplementedNoUnsafe
}
