package cmd

import "fmt"

// ExitCoder is implemented by cmd errors that must map to a process exit
// code other than the default 1.
type ExitCoder interface {
	error
	ExitCode() int
}

// UnsupportedFormatError signals an unrecognized --format value.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q (want json or table)", e.Format)
}

// NetworkFailureError signals that a scan ran but the retrieval itself
// failed (connection-error, tls-error, scan-timeout, ...), distinct from
// an invalid-host validation error.
type NetworkFailureError struct {
	Kind string
}

func (e *NetworkFailureError) Error() string {
	return fmt.Sprintf("scan failed: %s", e.Kind)
}

func (e *NetworkFailureError) ExitCode() int { return 2 }
