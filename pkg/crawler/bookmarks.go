package crawler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "artsync/pkg/errors"
	"artsync/pkg/models"
)

// visibilities expands "both" into the two bookmark lists
func visibilities(v string) []string {
	switch v {
	case "private":
		return []string{"private"}
	case "both":
		return []string{"public", "private"}
	default:
		return []string{"public"}
	}
}

// RunBookmarks crawls every followed account as an account subject. page
// and endPage apply to each account.
func (c *Crawler) RunBookmarks(ctx context.Context, visibility string, page, endPage int) (Status, error) {
	var members []int64
	for _, v := range visibilities(visibility) {
		ids, err := c.followedMembers(ctx, v)
		if err != nil {
			return StatusFailed, err
		}
		members = append(members, ids...)
	}
	c.logger.InfoWithFields("followed accounts listed", map[string]interface{}{
		"visibility": visibility,
		"count":      len(members),
	})

	for i, id := range members {
		c.logger.InfoWithFields("crawling followed account", map[string]interface{}{
			"member_id": id,
			"index":     i + 1,
			"total":     len(members),
		})
		if _, err := c.RunMember(ctx, memberSubject(id, ""), page, endPage); err != nil {
			return StatusStopped, err
		}
	}
	return StatusDone, nil
}

// ExportBookmarks writes the followed accounts to path as a member list
// that RunList can read back. It returns the number of accounts written.
func (c *Crawler) ExportBookmarks(ctx context.Context, visibility, path string) (int, error) {
	var members []int64
	for _, v := range visibilities(visibility) {
		ids, err := c.followedMembers(ctx, v)
		if err != nil {
			return 0, err
		}
		members = append(members, ids...)
	}
	if err := writeMemberList(path, visibility, members, c.now()); err != nil {
		err = apperrors.NewStorage(err, path)
		c.recordError("export", path, err)
		return 0, err
	}
	c.logger.InfoWithFields("followed accounts exported", map[string]interface{}{
		"visibility": visibility,
		"count":      len(members),
		"path":       path,
	})
	return len(members), nil
}

func writeMemberList(path, visibility string, ids []int64, now time.Time) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# followed accounts (%s), exported %s\n", visibility, now.Format(time.RFC3339))
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// followedMembers pages through one bookmark list. Only fatal faults and
// cancellation are returned; other faults end the listing early.
func (c *Crawler) followedMembers(ctx context.Context, visibility string) ([]int64, error) {
	subject := models.Subject{Kind: models.KindBookmarks, ID: visibility}
	run := &subjectRun{subject: subject}
	var ids []int64
	for page := 1; ; page++ {
		res, err := c.site.FetchBookmarkedMembers(ctx, visibility, page)
		if err != nil {
			_, err = c.pageFault(ctx, run, page, err)
			return ids, err
		}
		c.observePage(subject)
		for _, it := range res.Items {
			ids = append(ids, it.ID)
		}
		if res.IsLast || len(res.Items) == 0 {
			return ids, nil
		}
	}
}

// RunImageBookmarks downloads the user's bookmarked artifacts, optionally
// only those filed under tag
func (c *Crawler) RunImageBookmarks(ctx context.Context, visibility, tag string, page, endPage int) (Status, error) {
	status := StatusDone
	for _, v := range visibilities(visibility) {
		subject := models.Subject{
			Kind:   models.KindImageBmarks,
			ID:     v,
			Filter: models.Filter{Query: tag, Visibility: v},
		}
		run := c.newRun(subject)
		cursor := models.NewPageCursor(page, c.endPage(endPage), models.PageSize(models.KindImageBmarks, false))

		var err error
		status, err = c.bookmarkPages(ctx, run, cursor)
		c.finish(run, status)
		if err != nil {
			return status, err
		}
	}
	return status, nil
}

func (c *Crawler) bookmarkPages(ctx context.Context, run *subjectRun, cursor models.PageCursor) (Status, error) {
	for {
		if cursor.PastEnd() {
			return StatusDone, nil
		}
		if err := ctx.Err(); err != nil {
			return StatusStopped, err
		}
		run.page = cursor.Page

		res, err := c.site.FetchBookmarkedArtifacts(ctx, run.subject.Filter.Visibility, run.subject.Filter.Query, cursor.Page)
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
