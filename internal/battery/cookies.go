package battery

import (
	"strings"

	"github.com/secinto/httpobservatory/internal/retriever"
)

const (
	ExpectationCookiesSecureHTTPOnly = "cookies-secure-with-httponly-sessions"

	CookiesSecureWithHTTPOnlySessions = "cookies-secure-with-httponly-sessions"
	CookiesWithoutSecureFlag          = "cookies-without-secure-flag"
	CookiesWithoutHTTPOnlySessions    = "cookies-session-without-httponly"
	CookiesWithoutSameSite            = "cookies-without-samesite"
	CookiesNotFound                   = "cookies-not-found"
)

var cookieModifiers = map[string]int{
	CookiesSecureWithHTTPOnlySessions: 0,
	CookiesWithoutSecureFlag:          -40,
	CookiesWithoutHTTPOnlySessions:    -30,
	CookiesWithoutSameSite:            -10,
	CookiesNotFound:                   0,
}

// sessionCookiePatterns are common session-cookie name substrings, matched
// case-insensitively, per the design notes' "heuristic session-cookie
// detection by name."
var sessionCookiePatterns = []string{
	"sessid", "sessionid", "session_id", "phpsessid", "jsessionid",
	"asp.net_sessionid", "connect.sid", "auth", "token",
}

func isSessionCookie(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range sessionCookiePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// CookieFinding is per-cookie detail surfaced in the test's data field.
type CookieFinding struct {
	Name      string `json:"name"`
	Secure    bool   `json:"secure"`
	HTTPOnly  bool   `json:"httponly"`
	SameSite  string `json:"samesite"`
	SetOn     string `json:"set_on_scheme"`
	IsSession bool   `json:"is_session"`
}

func evalCookies(req retriever.Requests, expectation string) TestResult {
	if len(req.Cookies) == 0 {
		return TestResult{
			Expectation:   expectation,
			Result:        CookiesNotFound,
			Pass:          true, // explicit override: nothing to secure is not a failure
			ScoreModifier: cookieModifiers[CookiesNotFound],
		}
	}

	var findings []CookieFinding
	result := CookiesSecureWithHTTPOnlySessions

	for _, c := range req.Cookies {
		f := CookieFinding{
			Name:      c.Name,
			Secure:    c.Secure,
			HTTPOnly:  c.HTTPOnly,
			SameSite:  c.SameSite,
			SetOn:     c.SetOnScheme,
			IsSession: isSessionCookie(c.Name),
		}
		findings = append(findings, f)

		// A cookie lacking Secure is the worst finding regardless of which
		// scheme it was set on.
		if !c.Secure {
			result = worst(result, CookiesWithoutSecureFlag)
			continue
		}
		if f.IsSession && !c.HTTPOnly {
			result = worst(result, CookiesWithoutHTTPOnlySessions)
			continue
		}
		if c.SameSite == "" {
			result = worst(result, CookiesWithoutSameSite)
		}
	}

	return TestResult{
		Expectation:   expectation,
		Result:        result,
		Pass:          result == expectation,
		ScoreModifier: cookieModifiers[result],
		Data:          findings,
	}
}

// worst returns whichever of the two results has the more negative
// modifier, implementing "walk every cookie, keep the strictest finding."
func worst(a, b string) string {
	if cookieModifiers[b] < cookieModifiers[a] {
		return b
	}
	return a
}
