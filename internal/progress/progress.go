// Package progress shows crawl progress as a terminal spinner with a
// progress bar.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"
)

const barWidth = 24

// clearLine returns the cursor to the start of the line and erases it.
const clearLine = "\r\033[K"

// Tracker counts completed pages and records behind a spinner. The spinner
// only draws when the file is a terminal. Tracker is also an io.Writer:
// lines written through it clear the spinner first, so a logger sharing the
// terminal does not interleave with spinner frames.
type Tracker struct {
	out     *os.File
	tty     bool
	spinner *spinner.Spinner
	bar     progress.Model

	mu      sync.Mutex
	running bool
	total   int
	pages   int
	records int
	last    int
}

// New creates a Tracker drawing on f.
func New(f *os.File) *Tracker {
	return &Tracker{
		out:     f,
		tty:     isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()),
		spinner: spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriterFile(f)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
	}
}

// Start begins a crawl of total pages.
func (t *Tracker) Start(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
	t.pages = 0
	t.records = 0
	t.last = 0
	t.spinner.Suffix = t.suffix()

	if t.tty && !t.running {
		t.running = true
		t.spinner.Start()
	}
}

// PageDone records a completed page.
func (t *Tracker) PageDone(page, records int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages++
	t.records += records
	t.last = page
	t.spinner.Lock()
	t.spinner.Suffix = t.suffix()
	t.spinner.Unlock()
}

// Stop removes the spinner.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.running = false
		t.spinner.Stop()
	}
}

// Write writes p to the tracker's file, clearing the spinner line first
// while it is drawn. The spinner redraws on its next frame.
func (t *Tracker) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return t.out.Write(p)
	}

	t.spinner.Lock()
	defer t.spinner.Unlock()
	if _, err := io.WriteString(t.out, clearLine); err != nil {
		return 0, err
	}
	return t.out.Write(p)
}

func (t *Tracker) status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suffix()
}

func (t *Tracker) fraction() float64 {
	if t.total <= 0 {
		return 0
	}
	return min(float64(t.pages)/float64(t.total), 1)
}

func (t *Tracker) suffix() string {
	bar := t.bar.ViewAs(t.fraction())
	if t.last == 0 {
		return fmt.Sprintf(" %s page 0/%d · 0 records", bar, t.total)
	}
	return fmt.Sprintf(" %s page %d (%d/%d) · %d records", bar, t.last, t.pages, t.total, t.records)
}
