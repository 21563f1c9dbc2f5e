package battery

import (
	"net/http"
	"testing"

	"github.com/secinto/httpobservatory/internal/retriever"
)

func requestsWithHeaders(h map[string]string) retriever.Requests {
	hdr := make(http.Header)
	for k, v := range h {
		hdr.Set(k, v)
	}
	return retriever.Requests{FinalURL: "https://example.test/", Headers: hdr}
}

func TestCSPNoUnsafe(t *testing.T) {
	req := requestsWithHeaders(map[string]string{
		"Content-Security-Policy": "default-src 'none'; script-src 'self'; style-src 'self'; img-src 'self'; connect-src 'self'",
	})
	got := evalCSP(req, ExpectationCSPNoUnsafe)
	if got.Result != CSPImplementedNoUnsafe {
		t.Fatalf("Result = %q, want %q", got.Result, CSPImplementedNoUnsafe)
	}
	if !got.Pass {
		t.Fatalf("Pass = false, want true")
	}
	if got.ScoreModifier != 5 {
		t.Fatalf("ScoreModifier = %d, want 5", got.ScoreModifier)
	}
}

func TestCSPUnsafeInlineInScriptSrc(t *testing.T) {
	req := requestsWithHeaders(map[string]string{
		"Content-Security-Policy": "default-src 'self'; script-src 'self' 'unsafe-inline'",
	})
	got := evalCSP(req, ExpectationCSPNoUnsafe)
	if got.Result != CSPImplementedUnsafeInline {
		t.Fatalf("Result = %q, want %q", got.Result, CSPImplementedUnsafeInline)
	}
	if got.Pass {
		t.Fatalf("Pass = true, want false")
	}
	if got.ScoreModifier != -20 {
		t.Fatalf("ScoreModifier = %d, want -20", got.ScoreModifier)
	}
}

func TestCSPNotImplemented(t *testing.T) {
	req := requestsWithHeaders(nil)
	got := evalCSP(req, ExpectationCSPNoUnsafe)
	if got.Result != CSPNotImplemented {
		t.Fatalf("Result = %q, want %q", got.Result, CSPNotImplemented)
	}
}

func TestCSPNoDefaultOrScriptSrc(t *testing.T) {
	req := requestsWithHeaders(map[string]string{
		"Content-Security-Policy": "img-src 'self'",
	})
	got := evalCSP(req, ExpectationCSPNoUnsafe)
	if got.Result != CSPImplementedNoDefaultOrScriptSrc {
		t.Fatalf("Result = %q, want %q", got.Result, CSPImplementedNoDefaultOrScriptSrc)
	}
}
