// Package retriever performs the bounded set of network probes a scan
// needs and assembles them into an immutable Requests snapshot. It is the
// only layer in the scanner core that performs I/O.
package retriever

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/secinto/httpobservatory/internal/hstspreload"
	"github.com/secinto/httpobservatory/internal/shared/constants"
	secerrors "github.com/secinto/httpobservatory/internal/shared/errors"
	"github.com/secinto/httpobservatory/internal/site"
)

const userAgent = "httpobservatory-scanner/1.0 (+https://github.com/secinto/httpobservatory)"

// Config bounds every probe the retriever issues.
type Config struct {
	MaxRedirects int
	ProbeTimeout time.Duration
	WallClock    time.Duration
	BodyCap      int64
}

// DefaultConfig mirrors the spec's published defaults.
func DefaultConfig() Config {
	return Config{
		MaxRedirects: constants.DefaultMaxRedirects,
		ProbeTimeout: constants.DefaultProbeTimeout,
		WallClock:    constants.DefaultScanWallClock,
		BodyCap:      constants.RawBodyCaptureLimitBytes,
	}
}

// Cookie is one Set-Cookie observation, kept as a flat record rather than a
// keyed map so the same cookie name set multiple times along a redirect
// chain is preserved.
type Cookie struct {
	Name            string
	Value           string
	Secure          bool
	HTTPOnly        bool
	SameSite        string
	Path            string
	Domain          string
	Expires         time.Time
	HasExpires      bool
	MaxAge          int
	HasMaxAge       bool
	SetOnScheme     string // "http" or "https": scheme of the hop that emitted it
	SetOnHost       string
}

// Requests is the read-only snapshot produced once per scan. Every test in
// the battery is a pure function of this value.
type Requests struct {
	Site Site

	FinalURL    string
	StatusCode  int
	Headers     http.Header // canonical keys; callers should use Header.Get / lower-case comparisons
	Body        []byte
	Cookies     []Cookie

	HTTPStatusCode int
	HTTPLocation   string

	RobotsBody []byte // nil if unavailable

	Preload hstspreload.Verdict
}

// Site is an alias of site.Site, so callers can name a Requests' site
// through this package.
type Site = site.Site

// Retriever owns the HTTP client and preload checker shared across scans.
type Retriever struct {
	cfg     Config
	preload *hstspreload.Checker
}

// New builds a Retriever. preload may be nil, in which case preload-list
// membership is always reported as false (used in tests).
func New(cfg Config, preload *hstspreload.Checker) *Retriever {
	return &Retriever{cfg: cfg, preload: preload}
}

// Retrieve runs the fixed probe set for one Site and returns an immutable
// Requests snapshot, or a retrieval error per §4.2/§7.
func (r *Retriever) Retrieve(ctx context.Context, s site.Site) (Requests, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WallClock)
	defer cancel()

	req := Requests{Site: s}

	var httpsCookies, httpCookies []Cookie
	var httpsErr, httpErr, robotsErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		finalURL, status, headers, body, cookies, err := r.httpsProbe(gctx, s)
		if err != nil {
			httpsErr = err
			return nil // tolerated at the group level; classified below
		}
		req.FinalURL = finalURL
		req.StatusCode = status
		req.Headers = headers
		req.Body = body
		httpsCookies = cookies
		return nil
	})

	g.Go(func() error {
		status, location, cookies, err := r.httpProbe(gctx, s)
		if err != nil {
			httpErr = err
			return nil // HTTP probe failures are always tolerated
		}
		req.HTTPStatusCode = status
		req.HTTPLocation = location
		httpCookies = cookies
		return nil
	})

	g.Go(func() error {
		body, err := r.robotsProbe(gctx, s)
		if err != nil {
			robotsErr = err
			return nil // best-effort, never fails the scan
		}
		req.RobotsBody = body
		return nil
	})

	_ = g.Wait()

	if ctx.Err() == context.Canceled {
		return Requests{}, secerrors.ErrScanCancelled
	}
	if ctx.Err() == context.DeadlineExceeded {
		return Requests{}, secerrors.ErrScanTimeout
	}
	if httpsErr != nil {
		return Requests{}, classifyHTTPSFailure(httpsErr)
	}

	req.Cookies = append(append([]Cookie{}, httpsCookies...), httpCookies...)

	if r.preload != nil {
		req.Preload = r.preload.Lookup(ctx, s.RegistrableDomain())
	}

	// robots.txt and HTTP-probe failures are tolerated: they are combined
	// with multierr and the result is dropped. They are never returned as a
	// scan failure and are not recorded in the Requests snapshot.
	_ = multierr.Combine(httpErr, robotsErr)

	return req, nil
}

func classifyHTTPSFailure(err error) error {
	if err == context.DeadlineExceeded {
		return secerrors.ErrScanTimeout
	}
	if isRedirectLoop(err) {
		return secerrors.ErrRedirectionLoop
	}
	if isTLSError(err) {
		return secerrors.ErrTLSError
	}
	return secerrors.ErrConnectionError
}

func isRedirectLoop(err error) bool {
	return strings.Contains(err.Error(), "stopped after") || strings.Contains(err.Error(), "too many redirects")
}

func isTLSError(err error) bool {
	return strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:")
}

// httpsProbe follows redirects manually (rather than delegating to
// http.Client's built-in follower) because every hop's Set-Cookie headers
// must be captured, not just the final response's.
func (r *Retriever) httpsProbe(ctx context.Context, s site.Site) (finalURL string, status int, headers http.Header, body []byte, cookies []Cookie, err error) {
	client := &http.Client{
		Timeout: r.cfg.ProbeTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}

	currentURL := s.BaseURL("https")
	for hop := 0; ; hop++ {
		if hop > r.cfg.MaxRedirects {
			return "", 0, nil, nil, nil, errTooManyRedirects
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, currentURL, nil)
		if reqErr != nil {
			return "", 0, nil, nil, nil, reqErr
		}
		req.Header.Set("User-Agent", userAgent)

		resp, doErr := client.Do(req)
		if doErr != nil {
			return "", 0, nil, nil, nil, doErr
		}

		scheme := "https"
		if req.URL != nil {
			scheme = req.URL.Scheme
		}
		cookies = append(cookies, extractCookies(resp, scheme)...)

		if !isRedirectStatus(resp.StatusCode) {
			limited := io.LimitReader(resp.Body, r.cfg.BodyCap)
			buf, _ := io.ReadAll(limited)
			resp.Body.Close()
			return currentURL, resp.StatusCode, resp.Header, buf, cookies, nil
		}

		loc := resp.Header.Get("Location")
		resp.Body.Close()
		if loc == "" {
			return "", 0, nil, nil, nil, &redirectLoopError{}
		}
		next, parseErr := req.URL.Parse(loc)
		if parseErr != nil {
			return "", 0, nil, nil, nil, parseErr
		}
		currentURL = next.String()
	}
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func (r *Retriever) httpProbe(ctx context.Context, s site.Site) (status int, location string, cookies []Cookie, err error) {
	client := &http.Client{
		Timeout: r.cfg.ProbeTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL("http"), nil)
	if err != nil {
		return 0, "", nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, r.cfg.BodyCap))

	cookies = extractCookies(resp, "http")
	return resp.StatusCode, resp.Header.Get("Location"), cookies, nil
}

func (r *Retriever) robotsProbe(ctx context.Context, s site.Site) ([]byte, error) {
	client := &http.Client{Timeout: r.cfg.ProbeTimeout}
	origin := s.BaseURL("https")
	idx := strings.Index(origin[len("https://"):], "/")
	var base string
	if idx == -1 {
		base = origin
	} else {
		base = origin[:len("https://")+idx]
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	limited := io.LimitReader(resp.Body, r.cfg.BodyCap)
	return io.ReadAll(limited)
}

var errTooManyRedirects = &redirectLoopError{}

type redirectLoopError struct{}

func (*redirectLoopError) Error() string { return "stopped after too many redirects" }

func extractCookies(resp *http.Response, scheme string) []Cookie {
	var out []Cookie
	for _, c := range resp.Cookies() {
		out = append(out, Cookie{
			Name:        c.Name,
			Value:       c.Value,
			Secure:      c.Secure,
			HTTPOnly:    c.HttpOnly,
			SameSite:    sameSiteString(c.SameSite),
			Path:        c.Path,
			Domain:      c.Domain,
			Expires:     c.Expires,
			HasExpires:  !c.Expires.IsZero(),
			MaxAge:      c.MaxAge,
			HasMaxAge:   c.MaxAge != 0,
			SetOnScheme: scheme,
			SetOnHost:   resp.Request.URL.Hostname(),
		})
	}
	return out
}

func sameSiteString(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}
