package crawl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// LastPageAttr carries the page number on each pagination link.
const LastPageAttr = "data-ci-pagination-page"

// PaginationResolver discovers the last page of the directory from the
// pagination control on the first listing page.
type PaginationResolver struct {
	Session Session
	Waiter  Waiter
	Site    Site
	// URL is the first listing page.
	URL     string
	Timeout time.Duration
	Log     Logger
}

// ResolveLastPage navigates to the first listing page and reads the last page
// number. A missing pagination control is reported as a TimeoutError.
func (r *PaginationResolver) ResolveLastPage(ctx context.Context) (int, error) {
	r.Log.Debug("resolving last page", "url", r.URL)

	err := bounded(ctx, r.Timeout, func(ctx context.Context) error {
		return r.Session.Navigate(ctx, r.URL)
	})
	if err != nil {
		return 0, r.timeoutError(fmt.Errorf("failed to navigate to %s: %w", r.URL, err))
	}

	if err := r.Waiter.WaitFor(ctx, r.Site.PaginationMarker, r.Timeout); err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, &TimeoutError{Phase: PhasePagination, URL: r.URL, Marker: r.Site.PaginationMarker, After: r.Timeout, Err: err}
	}

	var html string
	err = bounded(ctx, r.Timeout, func(ctx context.Context) error {
		var err error
		html, err = r.Session.HTML(ctx)
		return err
	})
	if err != nil {
		return 0, r.timeoutError(fmt.Errorf("failed to snapshot %s: %w", r.URL, err))
	}

	last, err := ParseLastPage(html)
	if err != nil {
		return 0, err
	}
	r.Log.Info("resolved last page", "page", last)
	return last, nil
}

func (r *PaginationResolver) timeoutError(err error) error {
	if errors.Is(err, ErrTimedOut) {
		return &TimeoutError{Phase: PhasePagination, URL: r.URL, Marker: r.Site.PaginationMarker, After: r.Timeout, Err: err}
	}
	return err
}

// ParseLastPage reads the page number of the last link in the pagination
// control of a listing document.
func ParseLastPage(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPaginationUnreadable, err)
	}

	items := doc.Find("ul.pagination").First().Children().Filter("li")
	if items.Length() == 0 {
		return 0, fmt.Errorf("%w: no pagination items", ErrPaginationUnreadable)
	}

	link := items.Last().Children().First()
	raw, ok := link.Attr(LastPageAttr)
	if !ok {
		return 0, fmt.Errorf("%w: last item has no %s", ErrPaginationUnreadable, LastPageAttr)
	}

	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 0, fmt.Errorf("%w: invalid page %q", ErrPaginationUnreadable, raw)
	}
	return page, nil
}
