package analysis

import "fmt"

// Cause classifies an analysis failure so the orchestration layer can
// decide whether to fall back to a synthetic timeline.
type Cause int

const (
	// CauseDecode means the waveform could not be decoded.
	CauseDecode Cause = iota
	// CauseBackend means the acquisition or analysis tooling is absent.
	CauseBackend
	// CauseTooLarge means the input exceeded the resource ceiling.
	CauseTooLarge
	// CauseNumeric means a numeric step produced no usable result.
	CauseNumeric
)

func (c Cause) String() string {
	switch c {
	case CauseDecode:
		return "decode"
	case CauseBackend:
		return "backend"
	case CauseTooLarge:
		return "too-large"
	case CauseNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

// Error is the single failure type surfaced by the analyzer. Callers fall
// back on it; this package never substitutes synthetic data itself.
type Error struct {
	Cause Cause
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis failed (%s): %v", e.Cause, e.Err)
	}
	return fmt.Sprintf("analysis failed (%s)", e.Cause)
}

func (e *Error) Unwrap() error { return e.Err }
