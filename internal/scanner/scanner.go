// Package scanner wires site canonicalization, retrieval, the test
// battery, and grading into the single operation the rest of the system
// calls: take a host string, return a ScanReport.
package scanner

import (
	"context"
	"errors"

	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/retriever"
	"github.com/secinto/httpobservatory/internal/shared/constants"
	secerrors "github.com/secinto/httpobservatory/internal/shared/errors"
	"github.com/secinto/httpobservatory/internal/site"
)

// retrievalErrKinds maps the sentinel retrieval errors the retriever can
// return to the string the public report's "error" field carries. Anything
// else is folded into a generic scan-failed kind rather than leaking
// internal detail.
var retrievalErrKinds = map[error]string{
	secerrors.ErrConnectionError: "connection-error",
	secerrors.ErrTLSError:        "tls-error",
	secerrors.ErrRedirectionLoop: "redirection-loop",
	secerrors.ErrScanTimeout:     "scan-timeout",
	secerrors.ErrScanCancelled:   "scan-cancelled",
}

// Scanner owns the shared retriever/resolver used across every scan it
// runs. It holds no per-scan state.
type Scanner struct {
	retriever        *retriever.Retriever
	resolver         site.Resolver
	algorithmVersion int
}

// Option configures a Scanner at construction time.
type Option func(*Scanner)

// WithResolver overrides the resolver used for the validate-before-scan
// DNS check, for tests.
func WithResolver(r site.Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

// New builds a Scanner over an already-configured Retriever; opts may
// override the resolver used for DNS validation.
func New(r *retriever.Retriever, opts ...Option) *Scanner {
	s := &Scanner{
		retriever:        r,
		resolver:         site.DefaultResolver,
		algorithmVersion: constants.CurrentAlgorithmVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan canonicalizes hostString, validates it resolves, retrieves the
// probe set, runs the test battery, and grades the result. A validation
// failure (bad hostname, unresolvable host) is returned as an error so the
// caller can map it to a 422; a retrieval failure is never returned as an
// error — per §4.4 it short-circuits into a ScanReport whose score and
// grade are nil and whose Error field names the failure kind.
func (s *Scanner) Scan(ctx context.Context, hostString string, overrides battery.Overrides) (grader.ScanReport, error) {
	canonical, err := site.FromString(hostString)
	if err != nil {
		return grader.ScanReport{}, err
	}
	if err := site.Validate(s.resolver, canonical); err != nil {
		return grader.ScanReport{}, err
	}
	return s.ScanSite(ctx, canonical, overrides), nil
}

// ScanSite runs the retrieve/evaluate/grade pipeline against an
// already-canonicalized, already-validated Site. Exported separately from
// Scan so callers that canonicalize once and scan many times (batches)
// don't pay repeated validation.
func (s *Scanner) ScanSite(ctx context.Context, canonical site.Site, overrides battery.Overrides) grader.ScanReport {
	req, err := s.retriever.Retrieve(ctx, canonical)
	if err != nil {
		return grader.BuildFailure(s.algorithmVersion, retrievalErrKind(err))
	}

	results := battery.RunAll(req, overrides)
	return grader.Build(req, results, s.algorithmVersion)
}

func retrievalErrKind(err error) string {
	for sentinel, kind := range retrievalErrKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return "scan-failed"
}
