// Package crawl drives one rendered browsing session through a paginated
// directory: it resolves the page range, opens every listing row in place
// and turns each detail view into a record.
package crawl

import (
	"context"
	"time"
)

// Session is a stateful rendered browsing session. Every call mutates or
// reads the same document, so a Session must not be shared between
// goroutines.
type Session interface {
	// Navigate loads url in the session.
	Navigate(ctx context.Context, url string) error
	// Exists reports whether selector matches an element in the current document.
	Exists(ctx context.Context, selector string) (bool, error)
	// Click clicks the element addressed by target. It returns
	// ErrElementNotFound when the target does not exist.
	Click(ctx context.Context, target Locator) error
	// HTML returns a snapshot of the current document.
	HTML(ctx context.Context) (string, error)
}

// Locator addresses the Index-th element (0-based) matching Selector, or the
// first descendant of it matching Child when Child is set.
type Locator struct {
	Selector string
	Index    int
	Child    string
}

// Logger is the subset of *log.Logger the crawl pipeline writes to.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

// Site holds the fixed selectors of the directory being crawled.
type Site struct {
	ListingMarker    string
	RowSelector      string
	RowLink          string
	DetailMarker     string
	CloseControl     Locator
	PaginationMarker string
}

// DefaultSite describes the NGO directory layout.
var DefaultSite = Site{
	ListingMarker:    ".Tax",
	RowSelector:      "table.Tax tr",
	RowLink:          "a",
	DetailMarker:     "#UniqueID",
	CloseControl:     Locator{Selector: `span[aria-hidden="true"]`, Index: 1},
	PaginationMarker: ".pagination",
}

// sleep pauses for d unless ctx is done first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
