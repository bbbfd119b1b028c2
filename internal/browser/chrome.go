// Package browser runs the crawl session in headless Chrome.
package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chromedp/chromedp"

	"github.com/go-scripts/ngocrawl/internal/crawl"
)

// Options configures the Chrome process.
type Options struct {
	ExecPath  string
	Headless  bool
	UserAgent string
	// Log receives chromedp's own diagnostics at debug level. May be nil.
	Log *log.Logger
}

// Chrome is a single tab of a Chrome process. It implements crawl.Session.
type Chrome struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

var _ crawl.Session = (*Chrome)(nil)

// New launches Chrome and opens the tab the crawl runs in.
func New(opts Options) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	var ctxOpts []chromedp.ContextOption
	if opts.Log != nil {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(opts.Log.Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// An empty Run starts the browser so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Chrome{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Close shuts the tab and the browser process down.
func (c *Chrome) Close() {
	c.browserCancel()
	c.allocCancel()
}

// run executes actions in the tab, giving up when ctx is done. Cancelling ctx
// aborts the actions without closing the tab.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) Exists(ctx context.Context, selector string) (bool, error) {
	script, err := existsScript(selector)
	if err != nil {
		return false, err
	}
	var found bool
	if err := c.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

func (c *Chrome) Click(ctx context.Context, target crawl.Locator) error {
	script, err := clickScript(target)
	if err != nil {
		return err
	}
	var clicked bool
	if err := c.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %s[%d] %s", crawl.ErrElementNotFound, target.Selector, target.Index, target.Child)
	}
	return nil
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	return html, nil
}

func existsScript(selector string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`document.querySelector(%s) !== null`, sel), nil
}

// clickScript builds a script that clicks the element addressed by target and
// evaluates to whether it was found.
func clickScript(target crawl.Locator) (string, error) {
	sel, err := json.Marshal(target.Selector)
	if err != nil {
		return "", err
	}
	child, err := json.Marshal(target.Child)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
	let el = document.querySelectorAll(%s)[%d];
	const child = %s;
	if (el && child) {
		el = el.querySelector(child);
	}
	if (!el) {
		return false;
	}
	el.click();
	return true;
})()`, sel, target.Index, child), nil
}
