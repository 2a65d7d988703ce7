package crawler

import (
	"context"
	"time"

	"artsync/pkg/models"
)

// RunTags crawls a tag search. With infinite loop enabled a newest-first
// search that reaches the page ceiling starts again at page 1, bounded by
// the date of the last artifact seen.
func (c *Crawler) RunTags(ctx context.Context, subject models.Subject, page, endPage int) (Status, error) {
	subject.Kind = models.KindTagQuery
	if subject.Filter.Query == "" {
		subject.Filter.Query = subject.ID
	}
	if subject.ID == "" {
		subject.ID = subject.Filter.Query
	}

	run := c.newRun(subject)
	cursor := models.NewPageCursor(page, c.endPage(endPage), models.PageSize(models.KindTagQuery, c.cfg.Site.LargePages))
	run.ckpt = c.checkpoints(subject)
	cursor, run.ckptRec = c.resumeCursor(run.ckpt, subject, cursor)
	if run.ckptRec != nil && !run.ckptRec.EndDate.IsZero() {
		run.subject.Filter.EndDate = run.ckptRec.EndDate
		run.looped = true
	}

	c.logger.InfoWithFields("searching tags", map[string]interface{}{
		"query":         subject.Filter.Query,
		"page":          cursor.Page,
		"end_date":      run.subject.Filter.EndDate,
		"end_page":      cursor.EndPage,
		"oldest_first":  subject.Filter.OldestFirst,
		"min_bookmarks": subject.Filter.MinBookmarks,
	})

	status, err := c.tagPages(ctx, run, cursor)
	c.finish(run, status)
	return status, err
}

func (c *Crawler) tagPages(ctx context.Context, run *subjectRun, cursor models.PageCursor) (Status, error) {
	filter := run.subject.Filter
	for {
		if cursor.PastEnd() {
			return StatusDone, nil
		}
		if err := ctx.Err(); err != nil {
			return StatusStopped, err
		}
		run.page = cursor.Page

		res, err := c.site.FetchTagPage(ctx, filter, cursor)
		if err != nil {
			return c.pageFault(ctx, run, cursor.Page, err)
		}
		c.observePage(run.subject)
		if len(res.Items) == 0 {
			c.logger.InfoWithFields("no more artifacts", map[string]interface{}{"page": cursor.Page})
			return StatusDone, nil
		}

		c.tracker.StartPage(cursor.Page, len(res.Items))
		if status, err := c.evaluatePage(ctx, run, res.Items); status != running {
			return status, err
		}

		if cursor.Page >= c.tagCeiling && c.loopBack(filter) {
			last := res.Items[len(res.Items)-1]
			end, ok := c.lastDate(ctx, last)
			if !ok || (!filter.EndDate.IsZero() && !end.Before(filter.EndDate)) {
				c.logger.Info("no older artifacts after loop-back, stopping")
				return StatusDone, nil
			}
			c.logger.InfoWithFields("page ceiling reached, looping back", map[string]interface{}{
				"end_date": end.Format("2006-01-02"),
			})
			filter.EndDate = end
			run.looped = true
			cursor.Reset()
			c.saveWindow(run, cursor, end)
			continue
		}

		if res.IsLast {
			return StatusDone, nil
		}
		cursor.Advance()
		c.saveProgress(run, cursor)
	}
}

// loopBack reports whether the page ceiling restarts the search
func (c *Crawler) loopBack(filter models.Filter) bool {
	return c.cfg.Traversal.EnableInfiniteLoop && !filter.OldestFirst
}

// lastDate returns the creation date of item truncated to its day, fetching
// the descriptor when the listing did not carry it
func (c *Crawler) lastDate(ctx context.Context, item models.PageItem) (time.Time, bool) {
	created := item.Created
	if created.IsZero() {
		a, err := c.fetchArtifact(ctx, item.ID)
		if err != nil {
			c.logger.WithError(err).WithField("artifact", item.ID).Warn("cannot read date for loop-back")
			return time.Time{}, false
		}
		created = a.Created
	}
	if created.IsZero() {
		return time.Time{}, false
	}
	y, m, d := created.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, created.Location()), true
}

// saveWindow stores the restarted cursor with the loop-back end date
func (c *Crawler) saveWindow(run *subjectRun, next models.PageCursor, end time.Time) {
	if run.ckpt == nil || run.ckptRec == nil {
		return
	}
	if err := run.ckpt.UpdateWindow(run.ckptRec, next, end, run.processed); err != nil {
		c.logger.WithError(err).Warn("cannot save checkpoint")
	}
}
