package main

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/ngocrawl/internal/config"
	"github.com/go-scripts/ngocrawl/internal/crawl"
	"github.com/go-scripts/ngocrawl/internal/store"
)

// checkpoints ties one run to the progress store. A nil *checkpoints means
// progress is not persisted; every method is safe to call on nil.
type checkpoints struct {
	store      *store.Store
	run        store.Run
	checkpoint *store.Checkpoint
	resume     *crawl.Resume
}

// openCheckpoints opens the store and begins or resumes a run. Store
// failures are logged and the crawl continues without checkpoints.
func openCheckpoints(ctx context.Context, logger *log.Logger, cfg config.Config) *checkpoints {
	if !cfg.Checkpoint.Enabled {
		return nil
	}

	path := cfg.Checkpoint.Path
	if path == "" {
		p, err := store.DefaultPath()
		if err != nil {
			logger.Warn("checkpoints disabled", "err", err)
			return nil
		}
		path = p
	}

	s, err := store.Open(path)
	if err != nil {
		logger.Warn("checkpoints disabled", "path", path, "err", err)
		return nil
	}

	c := &checkpoints{store: s}
	if cfg.Checkpoint.Resume {
		if err := c.resumeLatest(ctx, logger); err == nil {
			return c
		} else if !errors.Is(err, store.ErrNoRun) {
			logger.Warn("failed to resume, starting a new run", "err", err)
		} else {
			logger.Info("nothing to resume, starting a new run")
		}
	}

	run, err := s.BeginRun(ctx)
	if err != nil {
		logger.Warn("checkpoints disabled", "path", path, "err", err)
		_ = s.Close()
		return nil
	}
	c.run = run
	c.checkpoint = s.Checkpoint(run.ID)
	logger.Debug("run started", "id", run.ID, "store", s.Path())
	return c
}

func (c *checkpoints) resumeLatest(ctx context.Context, logger *log.Logger) error {
	run, err := c.store.LatestUnfinished(ctx)
	if err != nil {
		return err
	}
	records, err := c.store.Records(ctx, run.ID)
	if err != nil {
		return err
	}
	if err := c.store.ReopenRun(ctx, run.ID); err != nil {
		return err
	}
	if run, err = c.store.GetRun(ctx, run.ID); err != nil {
		return err
	}

	c.run = run
	c.checkpoint = c.store.Checkpoint(run.ID)
	c.resume = &crawl.Resume{LastCompletedPage: run.LastCompletedPage, Records: records}
	logger.Info("resuming run", "id", run.ID, "last_completed_page", run.LastCompletedPage, "records", len(records))
	return nil
}

// finish records the outcome of the run. It uses a fresh context so an
// interrupted run is still marked.
func (c *checkpoints) finish(logger *log.Logger, res *crawl.Result) {
	if c == nil {
		return
	}
	status := store.StatusDone
	if res.State == crawl.StateAborted {
		status = store.StatusAborted
	}
	if err := c.store.FinishRun(context.Background(), c.run.ID, status, res.Err); err != nil {
		logger.Warn("failed to finish run", "id", c.run.ID, "err", err)
	}
}

func (c *checkpoints) runID() string {
	if c == nil {
		return ""
	}
	return c.run.ID
}

func (c *checkpoints) close() {
	if c == nil {
		return
	}
	_ = c.store.Close()
}
