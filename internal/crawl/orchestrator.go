package crawl

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/go-scripts/ngocrawl/internal/record"
)

// State is a step of the orchestrator state machine.
type State int

const (
	StateInit State = iota
	StateResolvingRange
	StateCrawling
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateResolvingRange:
		return "resolving-range"
	case StateCrawling:
		return "crawling"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// PageSource crawls one listing page.
type PageSource interface {
	CrawlPage(ctx context.Context, page int, listingURL string) ([]record.Record, error)
}

// LastPageResolver discovers the last page of the directory.
type LastPageResolver interface {
	ResolveLastPage(ctx context.Context) (int, error)
}

// Checkpointer persists every completed page.
type Checkpointer interface {
	PageDone(ctx context.Context, page int, records []record.Record) error
}

// Progress is told about crawl progress. All methods may be no-ops.
type Progress interface {
	Start(total int)
	PageDone(page, records int)
	Stop()
}

// Resume seeds a run with the state of an earlier, unfinished one.
type Resume struct {
	LastCompletedPage int
	Records           []record.Record
}

// Range is the inclusive page range of a run.
type Range struct {
	Start int
	End   int
}

// Result is the outcome of a run. Done and Aborted runs carry the same data;
// Err is set when the run was aborted.
type Result struct {
	Records []record.Record
	// LastCompletedPage is 0 when no page completed.
	LastCompletedPage int
	Range             Range
	State             State
	// AbortedIn is the state the run was in when it aborted.
	AbortedIn State
	Err       error
}

// Orchestrator resolves the page range and crawls it page by page, keeping
// everything collected before the first failure.
type Orchestrator struct {
	Pages    PageSource
	Resolver LastPageResolver
	PageURL  func(page int) string

	StartPage int
	// EndPage is the last page to crawl; a negative value means the last
	// page is discovered with Resolver.
	EndPage int

	// Retries is the number of extra attempts for a page that timed out.
	Retries    int
	RetryDelay time.Duration

	Checkpoint Checkpointer
	Progress   Progress
	Resume     *Resume
	Log        Logger

	state State
}

// Run drives the crawl to Done or Aborted. Errors never escape Run; they are
// reported in the Result.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	o.state = StateInit
	res := &Result{}
	if o.Resume != nil {
		res.Records = append(res.Records, o.Resume.Records...)
		res.LastCompletedPage = o.Resume.LastCompletedPage
	}

	o.state = StateResolvingRange
	res.Range.Start = o.StartPage
	end, err := o.resolveEnd(ctx)
	if err != nil {
		return o.abort(res, err)
	}
	res.Range.End = end
	if o.StartPage > end {
		return o.abort(res, &RangeError{Start: o.StartPage, End: end})
	}

	first := max(o.StartPage, res.LastCompletedPage+1)
	if first > end {
		o.Log.Info("range already covered", "last_completed_page", res.LastCompletedPage)
		return o.finish(res, StateDone, nil)
	}

	o.state = StateCrawling
	o.progressStart(end - first + 1)
	defer o.progressStop()

	for page := first; page <= end; page++ {
		if err := ctx.Err(); err != nil {
			return o.abort(res, err)
		}

		o.Log.Info("getting info", "page", page)
		records, err := o.crawlPage(ctx, page)
		if err != nil {
			return o.abort(res, err)
		}

		res.Records = append(res.Records, records...)
		res.LastCompletedPage = page
		o.checkpoint(ctx, page, records)
		o.progressPage(page, len(records))
	}

	return o.finish(res, StateDone, nil)
}

func (o *Orchestrator) resolveEnd(ctx context.Context) (int, error) {
	if o.EndPage >= 0 {
		o.Log.Info("using configured end page", "end_page", o.EndPage)
		return o.EndPage, nil
	}
	if o.Resolver == nil {
		return 0, errors.New("no end page configured and no resolver set")
	}
	return o.Resolver.ResolveLastPage(ctx)
}

// crawlPage crawls one page, retrying it after a load timeout when retries
// are configured. Other errors are not retried.
func (o *Orchestrator) crawlPage(ctx context.Context, page int) ([]record.Record, error) {
	url := o.PageURL(page)
	if o.Retries <= 0 {
		return o.Pages.CrawlPage(ctx, page, url)
	}

	op := func() ([]record.Record, error) {
		records, err := o.Pages.CrawlPage(ctx, page, url)
		if err == nil {
			return records, nil
		}
		var timeout *TimeoutError
		if errors.As(err, &timeout) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.RetryDelay
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		o.Log.Warn("retrying page", "page", page, "in", wait, "err", err)
	}

	return backoff.RetryNotifyWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.Retries)), ctx), notify)
}

func (o *Orchestrator) checkpoint(ctx context.Context, page int, records []record.Record) {
	if o.Checkpoint == nil {
		return
	}
	if err := o.Checkpoint.PageDone(ctx, page, records); err != nil {
		o.Log.Warn("failed to save checkpoint", "page", page, "err", err)
	}
}

func (o *Orchestrator) abort(res *Result, err error) *Result {
	o.Log.Error("crawl aborted", "state", o.state, "err", err)
	res.AbortedIn = o.state
	return o.finish(res, StateAborted, err)
}

func (o *Orchestrator) finish(res *Result, state State, err error) *Result {
	o.state = state
	res.State = state
	res.Err = err
	o.Log.Info("last successful page extract", "page", res.LastCompletedPage)
	return res
}

func (o *Orchestrator) progressStart(total int) {
	if o.Progress != nil {
		o.Progress.Start(total)
	}
}

func (o *Orchestrator) progressPage(page, records int) {
	if o.Progress != nil {
		o.Progress.PageDone(page, records)
	}
}

func (o *Orchestrator) progressStop() {
	if o.Progress != nil {
		o.Progress.Stop()
	}
}
