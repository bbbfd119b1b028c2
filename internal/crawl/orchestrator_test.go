package crawl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/ngocrawl/internal/record"
)

// stubPages returns two records per page unless a failure is scripted.
type stubPages struct {
	visited []int
	calls   map[int]int
	// fail returns the error for the n-th attempt (1-based) at a page.
	fail  func(page, attempt int) error
	after func(page int)
}

func (p *stubPages) CrawlPage(_ context.Context, page int, listingURL string) ([]record.Record, error) {
	if p.calls == nil {
		p.calls = make(map[int]int)
	}
	p.calls[page]++
	p.visited = append(p.visited, page)
	if p.after != nil {
		defer p.after(page)
	}
	if p.fail != nil {
		if err := p.fail(page, p.calls[page]); err != nil {
			return nil, err
		}
	}
	return []record.Record{
		{record.ID: fmt.Sprintf("%d-1", page), "URL": listingURL},
		{record.ID: fmt.Sprintf("%d-2", page), "URL": listingURL},
	}, nil
}

type stubResolver struct {
	last  int
	err   error
	calls int
}

func (r *stubResolver) ResolveLastPage(context.Context) (int, error) {
	r.calls++
	return r.last, r.err
}

type stubCheckpoint struct {
	pages []int
	err   error
}

func (c *stubCheckpoint) PageDone(_ context.Context, page int, _ []record.Record) error {
	c.pages = append(c.pages, page)
	return c.err
}

type stubProgress struct {
	total   int
	pages   []int
	stopped bool
}

func (p *stubProgress) Start(total int) { p.total = total }

func (p *stubProgress) PageDone(page, _ int) { p.pages = append(p.pages, page) }

func (p *stubProgress) Stop() { p.stopped = true }

func pageTimeout(page int) error {
	return &TimeoutError{Phase: PhaseListing, URL: fmt.Sprintf("list/%d", page), Marker: ".Tax", Err: ErrTimedOut}
}

func newOrchestrator(pages *stubPages, resolver *stubResolver, start, end int) *Orchestrator {
	o := &Orchestrator{
		Pages:      pages,
		PageURL:    func(page int) string { return fmt.Sprintf("list/%d", page) },
		StartPage:  start,
		EndPage:    end,
		RetryDelay: time.Millisecond,
		Log:        testLogger(),
	}
	if resolver != nil {
		o.Resolver = resolver
	}
	return o
}

func TestRun_DiscoveredRange(t *testing.T) {
	pages := &stubPages{}
	resolver := &stubResolver{last: 5}

	res := newOrchestrator(pages, resolver, 1, -1).Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, pages.visited)
	assert.Equal(t, 1, resolver.calls)
	assert.Equal(t, Range{Start: 1, End: 5}, res.Range)
	assert.Equal(t, 5, res.LastCompletedPage)
	require.Len(t, res.Records, 10)
	assert.Equal(t, "1-1", res.Records[0][record.ID])
	assert.Equal(t, "list/5", res.Records[9]["URL"])
}

func TestRun_ConfiguredEndSkipsResolver(t *testing.T) {
	pages := &stubPages{}
	resolver := &stubResolver{last: 50}

	res := newOrchestrator(pages, resolver, 2, 4).Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []int{2, 3, 4}, pages.visited)
	assert.Zero(t, resolver.calls)
	assert.Equal(t, 4, res.LastCompletedPage)
}

func TestRun_ZeroEndIsAnOverride(t *testing.T) {
	pages := &stubPages{}
	resolver := &stubResolver{last: 5}

	res := newOrchestrator(pages, resolver, 1, 0).Run(context.Background())

	var rangeErr *RangeError
	require.ErrorAs(t, res.Err, &rangeErr)
	assert.Zero(t, resolver.calls)
}

func TestRun_StartAfterEnd(t *testing.T) {
	tests := []struct {
		name  string
		start int
		end   int
		last  int
	}{
		{name: "configured end", start: 6, end: 5},
		{name: "discovered end", start: 9, end: -1, last: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := &stubPages{}
			resolver := &stubResolver{last: tt.last}

			res := newOrchestrator(pages, resolver, tt.start, tt.end).Run(context.Background())

			var rangeErr *RangeError
			require.ErrorAs(t, res.Err, &rangeErr)
			assert.Equal(t, tt.start, rangeErr.Start)
			assert.Equal(t, StateAborted, res.State)
			assert.True(t, IsFatal(res.Err))
			assert.Empty(t, pages.visited)
			assert.Empty(t, res.Records)
			assert.Zero(t, res.LastCompletedPage)
		})
	}
}

func TestRun_ConfiguredRangeNeverConsultsResolver(t *testing.T) {
	pages := &stubPages{}
	o := newOrchestrator(pages, nil, 3, 2)

	res := o.Run(context.Background())

	var rangeErr *RangeError
	require.ErrorAs(t, res.Err, &rangeErr)
	assert.Empty(t, pages.visited)
}

func TestRun_PageFailureKeepsEarlierPages(t *testing.T) {
	pages := &stubPages{fail: func(page, _ int) error {
		if page == 3 {
			return &RowError{Page: 3, Row: 2, Err: errors.New("email missing")}
		}
		return nil
	}}
	checkpoint := &stubCheckpoint{}
	o := newOrchestrator(pages, &stubResolver{last: 5}, 1, -1)
	o.Checkpoint = checkpoint

	res := o.Run(context.Background())

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, []int{1, 2, 3}, pages.visited)
	assert.Equal(t, 2, res.LastCompletedPage)
	assert.Equal(t, []string{"1-1", "1-2", "2-1", "2-2"}, ids(res.Records))
	assert.Equal(t, []int{1, 2}, checkpoint.pages)

	var rowErr *RowError
	require.ErrorAs(t, res.Err, &rowErr)
	assert.False(t, IsFatal(res.Err))
}

func TestRun_TimeoutIsFatalWithoutRetries(t *testing.T) {
	pages := &stubPages{fail: func(page, _ int) error {
		if page == 2 {
			return pageTimeout(page)
		}
		return nil
	}}

	res := newOrchestrator(pages, nil, 1, 4).Run(context.Background())

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 1, res.LastCompletedPage)
	assert.Equal(t, 1, pages.calls[2])
	assert.True(t, IsFatal(res.Err))
	assert.Len(t, res.Records, 2)
}

func TestRun_Retries(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		fail      func(page, attempt int) error
		wantCalls int
		wantState State
		wantFatal bool
	}{
		{
			name:    "timeout recovers",
			retries: 2,
			fail: func(page, attempt int) error {
				if page == 2 && attempt < 3 {
					return pageTimeout(page)
				}
				return nil
			},
			wantCalls: 3,
			wantState: StateDone,
		},
		{
			name:    "timeout persists",
			retries: 2,
			fail: func(page, _ int) error {
				if page == 2 {
					return pageTimeout(page)
				}
				return nil
			},
			wantCalls: 3,
			wantState: StateAborted,
			wantFatal: true,
		},
		{
			name:    "row errors are not retried",
			retries: 3,
			fail: func(page, _ int) error {
				if page == 2 {
					return &RowError{Page: 2, Row: 1, Err: errors.New("short member row")}
				}
				return nil
			},
			wantCalls: 1,
			wantState: StateAborted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := &stubPages{fail: tt.fail}
			o := newOrchestrator(pages, nil, 1, 3)
			o.Retries = tt.retries

			res := o.Run(context.Background())

			assert.Equal(t, tt.wantState, res.State)
			assert.Equal(t, tt.wantCalls, pages.calls[2])
			assert.Equal(t, tt.wantFatal, IsFatal(res.Err))
			if tt.wantState == StateAborted {
				assert.Equal(t, 1, res.LastCompletedPage)
				var rowErr *RowError
				var timeout *TimeoutError
				assert.True(t, errors.As(res.Err, &rowErr) || errors.As(res.Err, &timeout), "error lost its type: %v", res.Err)
			}
		})
	}
}

func TestRun_ResolverFailure(t *testing.T) {
	pages := &stubPages{}
	resolver := &stubResolver{err: &TimeoutError{Phase: PhasePagination, Err: ErrTimedOut}}

	res := newOrchestrator(pages, resolver, 1, -1).Run(context.Background())

	assert.Equal(t, StateAborted, res.State)
	assert.True(t, IsFatal(res.Err))
	assert.Empty(t, pages.visited)
}

func TestRun_Resume(t *testing.T) {
	seed := []record.Record{{record.ID: "1-1"}, {record.ID: "2-1"}, {record.ID: "3-1"}}

	t.Run("continues after last completed page", func(t *testing.T) {
		pages := &stubPages{}
		o := newOrchestrator(pages, nil, 1, 5)
		o.Resume = &Resume{LastCompletedPage: 3, Records: seed}

		res := o.Run(context.Background())

		assert.Equal(t, StateDone, res.State)
		assert.Equal(t, []int{4, 5}, pages.visited)
		assert.Equal(t, []string{"1-1", "2-1", "3-1", "4-1", "4-2", "5-1", "5-2"}, ids(res.Records))
		assert.Equal(t, 5, res.LastCompletedPage)
	})

	t.Run("range already covered", func(t *testing.T) {
		pages := &stubPages{}
		o := newOrchestrator(pages, nil, 1, 3)
		o.Resume = &Resume{LastCompletedPage: 3, Records: seed}

		res := o.Run(context.Background())

		assert.Equal(t, StateDone, res.State)
		assert.Empty(t, pages.visited)
		assert.Len(t, res.Records, 3)
		assert.Equal(t, 3, res.LastCompletedPage)
	})

	t.Run("later start page wins", func(t *testing.T) {
		pages := &stubPages{}
		o := newOrchestrator(pages, nil, 5, 6)
		o.Resume = &Resume{LastCompletedPage: 2, Records: seed}

		res := o.Run(context.Background())

		assert.Equal(t, []int{5, 6}, pages.visited)
		assert.Equal(t, 6, res.LastCompletedPage)
	})
}

func TestRun_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pages := &stubPages{after: func(page int) {
		if page == 2 {
			cancel()
		}
	}}

	res := newOrchestrator(pages, nil, 1, 5).Run(ctx)

	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, []int{1, 2}, pages.visited)
	assert.Equal(t, 2, res.LastCompletedPage)
	assert.Len(t, res.Records, 4)
	assert.False(t, IsFatal(res.Err))
}

func TestRun_CheckpointFailureDoesNotStopCrawl(t *testing.T) {
	pages := &stubPages{}
	checkpoint := &stubCheckpoint{err: errors.New("disk full")}
	progress := &stubProgress{}
	o := newOrchestrator(pages, nil, 1, 3)
	o.Checkpoint = checkpoint
	o.Progress = progress

	res := o.Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []int{1, 2, 3}, checkpoint.pages)
	assert.Equal(t, 3, progress.total)
	assert.Equal(t, []int{1, 2, 3}, progress.pages)
	assert.True(t, progress.stopped)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "resolving-range", StateResolvingRange.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "unknown", State(42).String())
}
