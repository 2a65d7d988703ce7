package crawler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	apperrors "artsync/pkg/errors"
	"artsync/pkg/models"
	"artsync/pkg/retry"
)

// ListEntry is one member of a list crawl
type ListEntry struct {
	MemberID int64
	// Dir overrides the output root for this member
	Dir string
}

// ParseMemberList reads "member_id [directory]" lines. Blank lines and
// lines starting with # are skipped.
func ParseMemberList(r io.Reader) ([]ListEntry, error) {
	var entries []ListEntry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		idPart, dir, _ := strings.Cut(text, " ")
		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("line %d: invalid member id %q", line, idPart)
		}
		entries = append(entries, ListEntry{MemberID: id, Dir: strings.TrimSpace(dir)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read member list: %w", err)
	}
	return entries, nil
}

// readLines returns the non-empty, non-comment lines of a file
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, text)
	}
	return lines, sc.Err()
}

// ignoredMembers loads the ignore list. A missing file ignores nobody.
func (c *Crawler) ignoredMembers() map[int64]struct{} {
	ignored := make(map[int64]struct{})
	path := c.cfg.Traversal.IgnoreList
	if path == "" {
		return ignored
	}
	lines, err := readLines(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.WithError(err).Warn("cannot read ignore list")
		}
		return ignored
	}
	for _, l := range lines {
		if id, err := strconv.ParseInt(strings.Fields(l)[0], 10, 64); err == nil {
			ignored[id] = struct{}{}
		}
	}
	return ignored
}

// storedMembers lists members from the store, only those not updated for
// day_last_updated days when that is set
func (c *Crawler) storedMembers(ctx context.Context) ([]ListEntry, error) {
	subjects, err := c.store.ListSubjects(ctx, c.cfg.Traversal.DayLastUpdated)
	if err != nil {
		return nil, apperrors.NewStorage(err, "artifact store")
	}
	entries := make([]ListEntry, 0, len(subjects))
	for _, s := range subjects {
		entries = append(entries, ListEntry{MemberID: s.ID, Dir: s.SaveFolder})
	}
	return entries, nil
}

var errMemberFailed = errors.New("member crawl failed")

// RunList crawls every member of a list file, or of the store when path is
// empty. Members on the ignore list are dropped. A member whose listing
// fails is tried again up to network.retry times.
func (c *Crawler) RunList(ctx context.Context, path string, page, endPage int) (Status, error) {
	var (
		entries []ListEntry
		err     error
	)
	if path == "" {
		entries, err = c.storedMembers(ctx)
	} else {
		var f *os.File
		if f, err = os.Open(path); err == nil {
			entries, err = ParseMemberList(f)
			f.Close()
		}
	}
	if err != nil {
		cfgErr := apperrors.NewConfig(fmt.Errorf("member list: %w", err))
		c.errors.SetFatal(cfgErr)
		return StatusFailed, cfgErr
	}

	ignored := c.ignoredMembers()
	c.logger.InfoWithFields("member list loaded", map[string]interface{}{
		"source":  listSource(path),
		"members": len(entries),
		"ignored": len(ignored),
	})

	for i, e := range entries {
		if _, skip := ignored[e.MemberID]; skip {
			c.logger.InfoWithFields("member ignored", map[string]interface{}{"member_id": e.MemberID})
			continue
		}
		c.logger.InfoWithFields("list member", map[string]interface{}{
			"member_id": e.MemberID,
			"index":     i + 1,
			"total":     len(entries),
		})
		if err := c.memberWithRetry(ctx, e, page, endPage); err != nil && !errors.Is(err, errMemberFailed) {
			return StatusStopped, err
		}
	}
	return StatusDone, nil
}

func (c *Crawler) memberWithRetry(ctx context.Context, e ListEntry, page, endPage int) error {
	return retry.Do(ctx, retry.Config{
		MaxAttempts: c.cfg.Network.Retry + 1,
		Backoff:     retry.ConstantBackoff{Delay: c.cfg.Network.RetryWait},
		RetryIf:     func(err error) bool { return errors.Is(err, errMemberFailed) },
		Logger:      c.logger.WithField("member_id", e.MemberID),
	}, func(ctx context.Context, _ int) error {
		status, err := c.RunMember(ctx, memberSubject(e.MemberID, e.Dir), page, endPage)
		if err != nil {
			return err
		}
		if status == StatusFailed {
			return errMemberFailed
		}
		return nil
	})
}

func listSource(path string) string {
	if path == "" {
		return "store"
	}
	return path
}

// RunTagsList runs a tag crawl for each line of a file, sharing filter
func (c *Crawler) RunTagsList(ctx context.Context, path string, filter models.Filter, page, endPage int) (Status, error) {
	queries, err := readLines(path)
	if err != nil {
		cfgErr := apperrors.NewConfig(fmt.Errorf("tags list: %w", err))
		c.errors.SetFatal(cfgErr)
		return StatusFailed, cfgErr
	}
	for _, q := range queries {
		f := filter
		f.Query = q
		if _, err := c.RunTags(ctx, models.Subject{Kind: models.KindTagQuery, ID: q, Filter: f}, page, endPage); err != nil {
			return StatusStopped, err
		}
	}
	return StatusDone, nil
}
