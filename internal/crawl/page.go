package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/go-scripts/ngocrawl/internal/record"
)

// ExtractFunc turns a detail view snapshot into a record.
type ExtractFunc func(html string) (record.Record, error)

// Timing holds the waits used while walking a listing page.
type Timing struct {
	// LoadTimeout bounds every navigation, click and wait for a render marker.
	LoadTimeout time.Duration
	// Settle is paused after opening a detail view. The detail markers may
	// already be in the document from the previous row, so the marker wait
	// alone cannot tell when the new content has arrived.
	Settle time.Duration
	// CloseSettle is paused after closing a detail view.
	CloseSettle time.Duration
}

// PageCrawler collects the records of one listing page.
type PageCrawler struct {
	Session Session
	Waiter  Waiter
	Extract ExtractFunc
	Site    Site
	Timing  Timing
	Log     Logger
}

// CrawlPage loads listingURL and opens every row after the header in turn.
// Any row failure aborts the page and no records are returned.
func (c *PageCrawler) CrawlPage(ctx context.Context, page int, listingURL string) ([]record.Record, error) {
	err := bounded(ctx, c.Timing.LoadTimeout, func(ctx context.Context) error {
		return c.Session.Navigate(ctx, listingURL)
	})
	if err != nil {
		return nil, c.waitError(PhaseListing, listingURL, c.Site.ListingMarker, fmt.Errorf("failed to navigate to %s: %w", listingURL, err))
	}

	if err := c.Waiter.WaitFor(ctx, c.Site.ListingMarker, c.Timing.LoadTimeout); err != nil {
		return nil, c.waitError(PhaseListing, listingURL, c.Site.ListingMarker, err)
	}

	html, err := c.snapshot(ctx)
	if err != nil {
		return nil, c.waitError(PhaseListing, listingURL, c.Site.ListingMarker, fmt.Errorf("failed to snapshot listing %s: %w", listingURL, err))
	}

	rows, err := countRows(html, c.Site.RowSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", listingURL, err)
	}
	c.Log.Debug("listing loaded", "page", page, "rows", max(rows-1, 0))

	var records []record.Record
	for row := 1; row < rows; row++ {
		rec, err := c.crawlRow(ctx, listingURL, row)
		if err != nil {
			var timeout *TimeoutError
			if errors.As(err, &timeout) || ctx.Err() != nil {
				return nil, err
			}
			return nil, &RowError{Page: page, Row: row, Err: err}
		}
		records = append(records, rec)
		c.Log.Debug("fetched info", "page", page, "row", row, "members", rec.Members(), "record", rec)
	}

	return records, nil
}

// crawlRow opens the detail view of one row, extracts it and closes it again.
func (c *PageCrawler) crawlRow(ctx context.Context, listingURL string, row int) (record.Record, error) {
	link := Locator{Selector: c.Site.RowSelector, Index: row, Child: c.Site.RowLink}
	if err := c.click(ctx, link); err != nil {
		return nil, c.waitError(PhaseDetail, listingURL, c.Site.DetailMarker, fmt.Errorf("failed to open detail view: %w", err))
	}

	if err := sleep(ctx, c.Timing.Settle); err != nil {
		return nil, err
	}

	if err := c.Waiter.WaitFor(ctx, c.Site.DetailMarker, c.Timing.LoadTimeout); err != nil {
		return nil, c.waitError(PhaseDetail, listingURL, c.Site.DetailMarker, err)
	}

	html, err := c.snapshot(ctx)
	if err != nil {
		return nil, c.waitError(PhaseDetail, listingURL, c.Site.DetailMarker, fmt.Errorf("failed to snapshot detail view: %w", err))
	}

	rec, err := c.Extract(html)
	if err != nil {
		return nil, err
	}

	if err := c.click(ctx, c.Site.CloseControl); err != nil {
		return nil, c.waitError(PhaseDetail, listingURL, c.Site.DetailMarker, fmt.Errorf("failed to close detail view: %w", err))
	}

	if err := sleep(ctx, c.Timing.CloseSettle); err != nil {
		return nil, err
	}

	return rec, nil
}

func (c *PageCrawler) click(ctx context.Context, target Locator) error {
	return bounded(ctx, c.Timing.LoadTimeout, func(ctx context.Context) error {
		return c.Session.Click(ctx, target)
	})
}

func (c *PageCrawler) snapshot(ctx context.Context) (string, error) {
	var html string
	err := bounded(ctx, c.Timing.LoadTimeout, func(ctx context.Context) error {
		var err error
		html, err = c.Session.HTML(ctx)
		return err
	})
	return html, err
}

// waitError turns a timeout into a TimeoutError and passes any other error
// through.
func (c *PageCrawler) waitError(phase Phase, url, marker string, err error) error {
	if errors.Is(err, ErrTimedOut) {
		return &TimeoutError{Phase: phase, URL: url, Marker: marker, After: c.Timing.LoadTimeout, Err: err}
	}
	return err
}

// countRows returns the number of rows matching selector, header included.
func countRows(html, selector string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, err
	}
	return doc.Find(selector).Length(), nil
}
