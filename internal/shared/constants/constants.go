package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// RawBodyCaptureLimitBytes caps how many bytes of a response body are
	// buffered for HTML parsing (SRI, meta-CSP) and robots.txt capture.
	RawBodyCaptureLimitBytes = 384 * 1024

	// DefaultProbeTimeout bounds a single HTTP probe (HTTPS, HTTP, robots.txt).
	DefaultProbeTimeout = 10 * time.Second

	// DefaultScanWallClock bounds the entire scan, across all probes.
	DefaultScanWallClock = 45 * time.Second

	// DefaultMaxRedirects is the redirect cap before a scan fails with
	// redirection-loop.
	DefaultMaxRedirects = 20

	// DefaultCooldown is the minimum interval between two retrievals for the
	// same siteKey.
	DefaultCooldown = 60 * time.Second

	// DefaultCacheTimeForGet is the maximum age of a cached row served by a
	// GET analyze request before a fresh scan is triggered.
	DefaultCacheTimeForGet = 24 * time.Hour

	// MaxBatchSize is the maximum number of URLs accepted per batch request.
	MaxBatchSize = 10

	// DefaultBatchConcurrency bounds in-flight scans within one batch.
	DefaultBatchConcurrency = 5

	// MinScore and MaxScore bound the clamped aggregate score.
	MinScore = 0
	MaxScore = 135

	// StartingScore is the score every scan begins from before modifiers.
	StartingScore = 100

	// CurrentAlgorithmVersion is stamped onto every ScanReport. Bumped
	// whenever grading semantics change.
	CurrentAlgorithmVersion = 5
)
