package crawler

import (
	"context"
	"strconv"

	"github.com/bits-and-blooms/bloom/v3"

	"artsync/pkg/checkpoint"
	apperrors "artsync/pkg/errors"
	"artsync/pkg/models"
)

// Status is why a traversal stopped
type Status int

const (
	// StatusDone means the listing ran out or the end page was passed
	StatusDone Status = iota
	// StatusFastSkip means enough already-saved artifacts were seen
	StatusFastSkip
	// StatusOlder means an artifact older than the date filter was reached
	StatusOlder
	// StatusLimit means the configured item limit was reached
	StatusLimit
	// StatusStopped means the user stopped the subject or the run
	StatusStopped
	// StatusInvalid means the subject is gone from the site
	StatusInvalid
	// StatusFailed means a listing page could not be fetched
	StatusFailed

	// running is only used between pages
	running Status = -1
)

var statusNames = map[Status]string{
	StatusDone:     "done",
	StatusFastSkip: "fast_skip",
	StatusOlder:    "older_reached",
	StatusLimit:    "limit_reached",
	StatusStopped:  "stopped",
	StatusInvalid:  "subject_invalid",
	StatusFailed:   "failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// seenEstimate sizes the per-subject seen set for a full tag listing
const seenEstimate = 100000

// subjectRun is the mutable state of one subject traversal
type subjectRun struct {
	subject models.Subject

	satisfied int   // artifacts found already on disk
	processed int   // artifacts evaluated
	page      int   // listing page being evaluated
	last      int64 // most recently processed artifact id
	pinned    int64 // cursor value chosen by the fast-skip rule

	// seen collects every listed id; it filters items only once a tag
	// listing has looped back over pages it already served
	seen   *bloom.BloomFilter
	looped bool

	ckpt    *checkpoint.Manager
	ckptRec *checkpoint.Checkpoint
}

func (c *Crawler) newRun(subject models.Subject) *subjectRun {
	c.tracker.StartSubject(subject.String())
	c.logger.InfoWithFields("subject started", map[string]interface{}{
		"subject": subject.String(),
		"root":    c.subjectRoot(subject),
	})
	return &subjectRun{
		subject: subject,
		seen:    bloom.NewWithEstimates(seenEstimate, 0.0001),
	}
}

// fastSkip reports whether the satisfied counter passed the configured limit
func (c *Crawler) fastSkip(run *subjectRun) bool {
	t := c.cfg.Traversal
	if t.CheckUpdatedLimit == 0 || t.AlwaysCheckFileExists || t.AlwaysCheckFileSize {
		return false
	}
	return run.satisfied > t.CheckUpdatedLimit
}

// stopsOnOlder reports whether SkipOlder ends the subject. Oldest-first tag
// listings deliver older artifacts first, so they keep going.
func stopsOnOlder(subject models.Subject) bool {
	return !(subject.Kind == models.KindTagQuery && subject.Filter.OldestFirst)
}

// belowPopularity reports an item whose listed bookmark count is under the
// subject's minimum. Unknown counts are checked after the descriptor fetch.
func belowPopularity(subject models.Subject, count int) bool {
	min := subject.Filter.MinBookmarks
	return min > 0 && count >= 0 && count < min
}

// evaluatePage processes items in order. It returns running while the
// subject should go on to the next page.
func (c *Crawler) evaluatePage(ctx context.Context, run *subjectRun, items []models.PageItem) (Status, error) {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return StatusStopped, err
		}
		if run.seen.TestOrAddString(idString(item.ID)) && run.looped {
			c.logger.DebugWithFields("artifact already seen before the loop-back", map[string]interface{}{
				"artifact": item.ID,
			})
			continue
		}
		if belowPopularity(run.subject, item.BookmarkCount) {
			c.skipUnpopular(run, item.ID, item.BookmarkCount)
			continue
		}

		outcome, fetched := c.processArtifact(ctx, run, item)
		run.processed++
		run.last = item.ID

		switch {
		case outcome.Satisfied():
			run.satisfied++
			if c.fastSkip(run) {
				run.pinned = newest(items)
				c.logger.InfoWithFields("check updated limit reached, skipping the rest", map[string]interface{}{
					"subject":   run.subject.String(),
					"satisfied": run.satisfied,
					"limit":     c.cfg.Traversal.CheckUpdatedLimit,
				})
				return StatusFastSkip, nil
			}
		case outcome == models.SkipOlder && stopsOnOlder(run.subject):
			c.logger.InfoWithFields("older artifact reached", map[string]interface{}{
				"subject":  run.subject.String(),
				"artifact": item.ID,
			})
			return StatusOlder, nil
		case outcome == models.Aborted:
			if err := ctx.Err(); err != nil {
				return StatusStopped, err
			}
			if !c.prompter.ContinueSubject(ctx, run.subject.String()) {
				c.logger.InfoWithFields("subject stopped by user", map[string]interface{}{
					"subject": run.subject.String(),
				})
				return StatusStopped, nil
			}
		}

		if fetched {
			if err := c.polite.Wait(ctx); err != nil {
				return StatusStopped, err
			}
		}
	}
	return running, nil
}

// cursorID is the artifact id the subject cursor moves to
func (run *subjectRun) cursorID() int64 {
	if run.pinned > 0 {
		return run.pinned
	}
	return run.last
}

func newest(items []models.PageItem) int64 {
	var max int64
	for _, it := range items {
		if it.ID > max {
			max = it.ID
		}
	}
	return max
}

// pageFault handles a listing page that could not be fetched
func (c *Crawler) pageFault(ctx context.Context, run *subjectRun, page int, err error) (Status, error) {
	if ctx.Err() != nil {
		return StatusStopped, ctx.Err()
	}
	c.dumpPage(run.subject, page, apperrors.PageOf(err))

	log := c.logger.WithError(err).WithFields(map[string]interface{}{
		"subject": run.subject.String(),
		"page":    page,
		"fault":   string(apperrors.TypeOf(err)),
	})
	switch t := apperrors.TypeOf(err); {
	case t == apperrors.ErrorTypeSubjectInvalid:
		log.Warn("subject is not available")
		if run.subject.Kind == models.KindAccount {
			if id, perr := run.subject.MemberID(); perr == nil {
				if serr := c.store.SetSubjectDeleted(ctx, id); serr != nil {
					c.logger.WithError(serr).Warn("cannot flag subject as deleted")
				}
			}
		}
		c.recordError(string(run.subject.Kind), run.subject.ID, err)
		return StatusInvalid, nil
	case apperrors.IsFatal(t):
		log.Error("fatal fault, aborting run")
		c.errors.SetFatal(err)
		return StatusFailed, err
	default:
		log.Error("cannot fetch listing page")
		c.recordError(string(run.subject.Kind), run.subject.ID, err)
		return StatusFailed, nil
	}
}

// recordError adds a non-fatal failure to the aggregator
func (c *Crawler) recordError(kind, id string, err error) {
	c.errors.Add(kind, id, err)
	if c.metrics != nil {
		c.metrics.ObserveRunError(string(apperrors.TypeOf(err)))
	}
}

// saveProgress stores the cursor of the next page to fetch
func (c *Crawler) saveProgress(run *subjectRun, next models.PageCursor) {
	if run.ckpt == nil || run.ckptRec == nil {
		return
	}
	if err := run.ckpt.UpdateProgress(run.ckptRec, next, run.processed); err != nil {
		c.logger.WithError(err).Warn("cannot save checkpoint")
	}
}

// finish logs the end of a traversal. A traversal that ran to a terminal
// state other than a user stop or failure drops its checkpoint.
func (c *Crawler) finish(run *subjectRun, status Status) {
	if run.ckpt != nil && status != StatusStopped && status != StatusFailed {
		if err := run.ckpt.Delete(); err != nil {
			c.logger.WithError(err).Warn("cannot remove checkpoint")
		}
	}
	c.logger.InfoWithFields("subject finished", map[string]interface{}{
		"subject":   run.subject.String(),
		"status":    status.String(),
		"processed": run.processed,
		"satisfied": run.satisfied,
		"last":      run.last,
	})
}
