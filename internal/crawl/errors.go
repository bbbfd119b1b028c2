package crawl

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimedOut is returned by a Waiter when the marker never appeared.
	ErrTimedOut = errors.New("timed out waiting for render marker")

	// ErrElementNotFound is returned by a Session when a click target is missing.
	ErrElementNotFound = errors.New("element not found")

	// ErrPaginationUnreadable is returned when the pagination control has no
	// usable last page number.
	ErrPaginationUnreadable = errors.New("pagination control has no last page number")
)

// Phase names the navigation step a timeout happened in.
type Phase string

const (
	PhasePagination Phase = "pagination"
	PhaseListing    Phase = "listing"
	PhaseDetail     Phase = "detail"
)

// TimeoutError reports a render marker that did not appear in time. Any
// TimeoutError ends the run.
type TimeoutError struct {
	Phase  Phase
	URL    string
	Marker string
	After  time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s load of %s: marker %q not present after %s: %v", e.Phase, e.URL, e.Marker, e.After, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RangeError reports a start page after the resolved end page.
type RangeError struct {
	Start int
	End   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("start page %d is after end page %d", e.Start, e.End)
}

// RowError wraps the failure of a single listing row.
type RowError struct {
	Page int
	Row  int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("page %d row %d: %v", e.Page, e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// IsFatal reports whether err must end the process with a failure status:
// configuration errors and load timeouts.
func IsFatal(err error) bool {
	var timeout *TimeoutError
	var rng *RangeError
	return errors.As(err, &timeout) || errors.As(err, &rng)
}
