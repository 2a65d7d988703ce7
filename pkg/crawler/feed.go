package crawler

import (
	"context"
	"net/url"
	"path"

	"artsync/internal/downloader"
	"artsync/pkg/models"
	"artsync/pkg/pathtemplate"
	"artsync/pkg/site"
)

// RunFeed crawls new works from followed accounts. The feed is newest
// first, so reaching an artifact older than the date filter ends it.
func (c *Crawler) RunFeed(ctx context.Context, page, endPage int) (Status, error) {
	subject := models.Subject{Kind: models.KindArtistFeed, ID: "followed"}
	run := c.newRun(subject)
	cursor := models.NewPageCursor(page, c.endPage(endPage), models.PageSize(models.KindArtistFeed, false))

	status, err := c.feedPages(ctx, run, cursor)
	c.finish(run, status)
	return status, err
}

func (c *Crawler) feedPages(ctx context.Context, run *subjectRun, cursor models.PageCursor) (Status, error) {
	for {
		if cursor.PastEnd() || cursor.Page > site.FeedPageCeiling {
			return StatusDone, nil
		}
		if err := ctx.Err(); err != nil {
			return StatusStopped, err
		}
		run.page = cursor.Page

		res, err := c.site.FetchFeedPage(ctx, cursor.Page)
		if err != nil {
			return c.pageFault(ctx, run, cursor.Page, err)
		}
		c.observePage(run.subject)
		if len(res.Items) == 0 {
			return StatusDone, nil
		}

		c.tracker.StartPage(cursor.Page, len(res.Items))
		if status, err := c.evaluatePage(ctx, run, res.Items); status != running {
			return status, err
		}
		if res.IsLast {
			return StatusDone, nil
		}
		cursor.Advance()
	}
}

// RunGroup crawls a group's articles newest first, following the max_id
// cursor. limit caps the number of items, 0 means no cap. Articles that
// point outside the site are downloaded as plain files.
func (c *Crawler) RunGroup(ctx context.Context, groupID string, limit int) (Status, error) {
	subject := models.Subject{Kind: models.KindGroup, ID: groupID, Filter: models.Filter{Limit: limit}}
	run := c.newRun(subject)
	status, err := c.groupPages(ctx, run, limit)
	c.finish(run, status)
	return status, err
}

func (c *Crawler) groupPages(ctx context.Context, run *subjectRun, limit int) (Status, error) {
	maxID := ""
	count := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return StatusStopped, err
		}
		run.page = page

		res, err := c.site.FetchGroupPage(ctx, run.subject.ID, maxID)
		if err != nil {
			return c.pageFault(ctx, run, page, err)
		}
		c.observePage(run.subject)
		if len(res.Items) == 0 && len(res.External) == 0 {
			return StatusDone, nil
		}
		c.tracker.StartPage(page, len(res.Items)+len(res.External))

		for _, item := range res.Items {
			if limit > 0 && count >= limit {
				return StatusLimit, nil
			}
			count++
			if status, err := c.evaluatePage(ctx, run, []models.PageItem{item}); status != running {
				return status, err
			}
		}
		for _, u := range res.External {
			if limit > 0 && count >= limit {
				return StatusLimit, nil
			}
			count++
			if outcome := c.downloadExternal(ctx, run, u); outcome == models.Aborted {
				if err := ctx.Err(); err != nil {
					return StatusStopped, err
				}
				if !c.prompter.ContinueSubject(ctx, run.subject.String()) {
					return StatusStopped, nil
				}
			}
		}

		if res.IsLast {
			return StatusDone, nil
		}
		maxID = res.NextCursor
	}
}

// downloadExternal fetches a direct image URL into the group's directory
func (c *Crawler) downloadExternal(ctx context.Context, run *subjectRun, fileURL string) models.Outcome {
	name := fileURL
	if u, err := url.Parse(fileURL); err == nil {
		name = path.Base(u.Path)
	}
	dest := pathtemplate.Sanitize(path.Join("group_"+run.subject.ID, name), c.subjectRoot(run.subject))

	actx, release := c.interrupts.artifactContext(ctx)
	res, err := c.dl.Fetch(actx, downloader.Request{
		URL:              fileURL,
		Dest:             dest,
		Overwrite:        c.cfg.Output.Overwrite,
		BackupOnConflict: c.cfg.Output.BackupOldFile,
	})
	release()

	switch {
	case err != nil:
		c.recordError("external", fileURL, err)
	case res.Fault != nil:
		c.recordError("external", fileURL, res.Fault)
	}
	c.tracker.Record(0, res.Outcome.String())
	if res.Outcome != models.Aborted {
		if werr := c.polite.Wait(ctx); werr != nil {
			return models.Aborted
		}
	}
	return res.Outcome
}
