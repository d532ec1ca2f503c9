// Package errors provides error handling for lacosmic.
//
// This package re-exports github.com/cockroachdb/errors and adds the
// sentinel errors used to classify failures in a batch run:
//
//	// Mark an error so callers can classify it
//	return errors.Mark(errors.Wrapf(err, "open %s", path), errors.ErrInputRead)
//
//	// Classify
//	if errors.Is(err, errors.ErrExternalTool) {
//	    // the image is skipped, the batch continues
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Mark           = crdb.Mark
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	CombineErrors  = crdb.CombineErrors
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors for the failure classes of a run.
// Use Mark or Wrap to attach context while keeping errors.Is working.
var (
	// ErrMissingHeaderKeyword indicates a requested FITS header keyword is absent
	ErrMissingHeaderKeyword = New("missing header keyword")

	// ErrInputRead indicates an input image could not be opened or decoded
	ErrInputRead = New("input read error")

	// ErrExternalTool indicates the cosmic-ray task could not be run or failed
	ErrExternalTool = New("external tool error")

	// ErrFilesystem indicates a move, remove or mkdir failed
	ErrFilesystem = New("filesystem error")

	// ErrConfiguration indicates invalid configuration or parameters
	ErrConfiguration = New("configuration error")
)

// Configurationf returns a new configuration error with a formatted message.
func Configurationf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfiguration)
}

// IsConfigurationError checks if an error is or wraps ErrConfiguration
func IsConfigurationError(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// Kind returns a short name for the failure class of err, for log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrMissingHeaderKeyword):
		return "missing_keyword"
	case Is(err, ErrInputRead):
		return "input_read"
	case Is(err, ErrExternalTool):
		return "external_tool"
	case Is(err, ErrFilesystem):
		return "filesystem"
	case Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "unknown"
	}
}
