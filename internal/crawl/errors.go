package crawl

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the run-level and per-attempt taxonomy. Renderer
// implementations wrap the navigation sentinels; the scheduler classifies
// attempts with errors.Is and never lets a per-target error escape the run.
var (
	// ErrCatalogUnavailable means the remote catalog failed and no usable
	// cache exists. Fatal before any target is attempted.
	ErrCatalogUnavailable = errors.New("location catalog unavailable")

	// ErrUnknownLocation marks a configured location the catalog cannot
	// resolve. Collected as a warning, never run-fatal.
	ErrUnknownLocation = errors.New("unknown location")

	// ErrNavigationTimeout is a retryable render timeout.
	ErrNavigationTimeout = errors.New("navigation timeout")

	// ErrNavigationError is a retryable transport or navigation failure.
	ErrNavigationError = errors.New("navigation error")

	// ErrRendererUnavailable means no renderer instance could serve the
	// request. Retryable.
	ErrRendererUnavailable = errors.New("renderer unavailable")

	// ErrStructuralParse means the rendered content did not match the
	// expected document shape. Retryable; distinct from a page that
	// loaded fine but holds zero dealer containers.
	ErrStructuralParse = errors.New("structural parse error")

	// ErrValidation rejects a single candidate record.
	ErrValidation = errors.New("validation error")

	// ErrExcessiveFailureRate aborts the run when the failed-target
	// fraction crosses the configured threshold.
	ErrExcessiveFailureRate = errors.New("excessive failure rate")
)

// Retryable reports whether an attempt error warrants another attempt for
// the same target.
func Retryable(err error) bool {
	return errors.Is(err, ErrNavigationTimeout) ||
		errors.Is(err, ErrNavigationError) ||
		errors.Is(err, ErrRendererUnavailable) ||
		errors.Is(err, ErrStructuralParse)
}

// ErrorKind maps an error to its taxonomy label for ledger entries and
// metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNavigationTimeout):
		return "navigation_timeout"
	case errors.Is(err, ErrNavigationError):
		return "navigation_error"
	case errors.Is(err, ErrRendererUnavailable):
		return "renderer_unavailable"
	case errors.Is(err, ErrStructuralParse):
		return "structural_parse"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrCatalogUnavailable):
		return "catalog_unavailable"
	case errors.Is(err, ErrExcessiveFailureRate):
		return "excessive_failure_rate"
	default:
		return "other"
	}
}

// UnknownLocationWarning records one unresolved configured location.
type UnknownLocationWarning struct {
	Brand    string
	Location string
}

func (w UnknownLocationWarning) Error() string {
	return fmt.Sprintf("%v: %q for brand %q", ErrUnknownLocation, w.Location, w.Brand)
}

// Unwrap lets errors.Is match ErrUnknownLocation.
func (w UnknownLocationWarning) Unwrap() error {
	return ErrUnknownLocation
}
