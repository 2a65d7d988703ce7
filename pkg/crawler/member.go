package crawler

import (
	"context"
	"fmt"

	apperrors "artsync/pkg/errors"
	"artsync/pkg/models"
)

// endPage resolves the page limit; an explicit value wins over the config
func (c *Crawler) endPage(explicit int) int {
	if explicit > 0 {
		return explicit
	}
	return c.cfg.Traversal.NumberOfPage
}

// RunMember crawls an account's artifacts from page to endPage, newest first.
// endPage 0 falls back to the configured number of pages.
func (c *Crawler) RunMember(ctx context.Context, subject models.Subject, page, endPage int) (Status, error) {
	subject.Kind = models.KindAccount
	memberID, err := subject.MemberID()
	if err != nil {
		c.recordError(string(subject.Kind), subject.ID, apperrors.New(apperrors.ErrorTypeSubjectInvalid, err.Error()))
		return StatusInvalid, nil
	}

	if subject.OutputDir == "" {
		if rec, err := c.store.GetSubject(ctx, memberID); err == nil && rec != nil && rec.SaveFolder != "" {
			subject.OutputDir = rec.SaveFolder
		}
	}

	run := c.newRun(subject)
	cursor := models.NewPageCursor(page, c.endPage(endPage), models.PageSize(models.KindAccount, c.cfg.Site.LargePages))
	run.ckpt = c.checkpoints(subject)
	cursor, run.ckptRec = c.resumeCursor(run.ckpt, subject, cursor)

	c.logger.InfoWithFields("crawling account", map[string]interface{}{
		"member_id":    memberID,
		"tag":          subject.Filter.Query,
		"page":         cursor.Page,
		"end_page":     cursor.EndPage,
		"offset_start": cursor.OffsetStart(),
		"offset_stop":  cursor.OffsetStop(),
	})

	status, err := c.memberPages(ctx, run, memberID, cursor)

	// a tag-scoped crawl covers part of the account and leaves its cursor alone
	if id := run.cursorID(); id > 0 && status != StatusInvalid && subject.Filter.Query == "" {
		if serr := c.store.SetSubjectCursor(ctx, memberID, id); serr != nil {
			c.logger.WithError(serr).Warn("cannot update subject cursor")
		}
	}
	c.finish(run, status)
	return status, err
}

func (c *Crawler) memberPages(ctx context.Context, run *subjectRun, memberID int64, cursor models.PageCursor) (Status, error) {
	for {
		if cursor.PastEnd() {
			c.logger.InfoWithFields("end page reached", map[string]interface{}{"end_page": cursor.EndPage})
			return StatusDone, nil
		}
		if err := ctx.Err(); err != nil {
			return StatusStopped, err
		}
		run.page = cursor.Page

		res, err := c.site.FetchMemberPage(ctx, memberID, cursor, run.subject.Filter)
		if err != nil {
			return c.pageFault(ctx, run, cursor.Page, err)
		}
		c.observePage(run.subject)
		if res.SubjectName != "" {
			if err := c.store.UpsertSubject(ctx, memberID, res.SubjectName, run.subject.OutputDir); err != nil {
				c.logger.WithError(err).Warn("cannot refresh subject name")
			}
		}
		if len(res.Items) == 0 {
			c.logger.InfoWithFields("no more artifacts", map[string]interface{}{"page": cursor.Page})
			return StatusDone, nil
		}

		c.tracker.StartPage(cursor.Page, len(res.Items))
		if status, err := c.evaluatePage(ctx, run, res.Items); status != running {
			return status, err
		}

		if res.IsLast {
			c.logger.InfoWithFields("last page", map[string]interface{}{"page": cursor.Page})
			return StatusDone, nil
		}
		cursor.Advance()
		c.saveProgress(run, cursor)
	}
}

// RunImage processes a single artifact by id
func (c *Crawler) RunImage(ctx context.Context, id int64) (models.Outcome, error) {
	subject := models.Subject{Kind: models.KindImage, ID: idString(id)}
	run := c.newRun(subject)
	outcome, _ := c.processArtifact(ctx, run, models.PageItem{ID: id, BookmarkCount: -1})
	run.processed, run.last = 1, id
	c.finish(run, StatusDone)
	if outcome == models.Aborted && ctx.Err() != nil {
		return outcome, ctx.Err()
	}
	return outcome, nil
}

func (c *Crawler) observePage(subject models.Subject) {
	if c.metrics != nil {
		c.metrics.ObservePage(string(subject.Kind))
	}
}

// memberSubject builds the account subject for a followed or listed member
func memberSubject(memberID int64, dir string) models.Subject {
	return models.Subject{Kind: models.KindAccount, ID: fmt.Sprint(memberID), OutputDir: dir}
}
