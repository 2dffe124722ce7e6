/*
errors.go - Error types for the ledger engine

PURPOSE:
  All error types in one place. The engine distinguishes three outcomes
  that must stay distinguishable up to the HTTP layer:

  1. Record skipped  - not an error; counted in Report.Diagnostics
  2. Invalid range   - client error (from after to, missing to)
  3. Source missing  - the whole collection could not be obtained

  A successful report that filtered everything out is none of the above:
  it is a normal Report holding only the opening row.

USAGE:
    report, err := ledger.ComputeLedger(raw, opts)
    switch {
    case ledger.IsClientError(err):       // 400
    case ledger.IsSourceUnavailable(err): // 500
    }

SEE ALSO:
  - compute.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when the report's from date is after its to date.
	ErrInvalidRange = errors.New("invalid date range: from after to")

	// ErrToDateRequired is returned when no to date is supplied. The engine
	// never defaults it to today.
	ErrToDateRequired = errors.New("to date is required")

	// ErrSourceUnavailable is returned when an entire input collection is
	// missing or cannot be parsed.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrUnknownBook is returned when a book has no schema or report definition.
	ErrUnknownBook = errors.New("unknown book")

	// ErrInvalidRecord is returned by writers when a record cannot be stored.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidCriteria is returned when report parameters are unusable,
	// e.g. a party ledger without a party.
	ErrInvalidCriteria = errors.New("invalid report criteria")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RangeError reports a from date after the to date.
type RangeError struct {
	From Date
	To   Date
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid date range: from %s is after to %s", e.From, e.To)
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

// SourceError reports a book that could not be loaded.
type SourceError struct {
	Book string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source unavailable: %s", e.Book)
	}
	return fmt.Sprintf("source unavailable: %s: %v", e.Book, e.Err)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSourceUnavailable}
	}
	return []error{ErrSourceUnavailable, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid report parameters.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrToDateRequired) ||
		errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrInvalidCriteria)
}

// IsSourceUnavailable returns true if an input collection could not be obtained.
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsNotFound returns true if the error names something that does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownBook)
}
