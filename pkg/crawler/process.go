package crawler

import (
	"context"
	"fmt"

	"artsync/internal/downloader"
	apperrors "artsync/pkg/errors"
	"artsync/pkg/metadata"
	"artsync/pkg/models"
	"artsync/pkg/pathtemplate"
	"artsync/pkg/retry"
)

// processArtifact runs dedup, download and write-back for one listed item.
// fetched reports whether the descriptor was requested from the site.
func (c *Crawler) processArtifact(ctx context.Context, run *subjectRun, item models.PageItem) (outcome models.Outcome, fetched bool) {
	log := c.logger.WithFields(map[string]interface{}{
		"subject":  run.subject.String(),
		"artifact": item.ID,
	})
	defer func() {
		c.tracker.Record(item.ID, outcome.String())
		if c.metrics != nil {
			c.metrics.ObserveArtifact(string(run.subject.Kind), outcome.String())
		}
	}()

	rec, err := c.store.LookupArtifact(ctx, item.ID)
	if err != nil {
		log.WithError(err).Warn("artifact lookup failed, treating as unknown")
		rec = nil
	}
	switch c.decider.Known(rec) {
	case models.SkipDuplicate:
		log.Debug("already downloaded")
		return models.SkipDuplicate, false
	case models.CheckDownload:
		log.InfoWithFields("recorded file is missing, downloading again", map[string]interface{}{
			"save_name": rec.SaveName,
		})
	}

	a, err := c.fetchArtifact(ctx, item.ID)
	if err != nil {
		if ctx.Err() != nil {
			return models.Aborted, false
		}
		c.dumpPage(run.subject, run.page, apperrors.PageOf(err))
		log.WithError(err).Error("cannot fetch artifact")
		c.recordError("artifact", idString(item.ID), err)
		return models.NotOK, false
	}
	if item.BookmarkCount < 0 && belowPopularity(run.subject, a.BookmarkCount) {
		c.skipUnpopular(run, a.ID, a.BookmarkCount)
		return models.SkipBlacklist, true
	}
	return c.downloadArtifact(ctx, run, a, rec), true
}

// fetchArtifact requests a descriptor, retrying recoverable faults up to
// the configured retry count
func (c *Crawler) fetchArtifact(ctx context.Context, id int64) (*models.ArtifactDescriptor, error) {
	return retry.DoWithResult(ctx, retry.Config{
		MaxAttempts: c.cfg.Network.Retry + 1,
		Backoff:     retry.ConstantBackoff{Delay: c.cfg.Network.RetryWait},
		RetryIf:     retry.DefaultRetryIf,
		Logger:      c.logger.WithField("artifact", id),
	}, func(ctx context.Context, _ int) (*models.ArtifactDescriptor, error) {
		return c.site.FetchArtifact(ctx, id)
	})
}

// downloadArtifact names, filters and downloads a fetched artifact, then
// writes the outcome back to the store
func (c *Crawler) downloadArtifact(ctx context.Context, run *subjectRun, a *models.ArtifactDescriptor, rec *models.ArtifactRecord) models.Outcome {
	log := c.logger.WithFields(map[string]interface{}{
		"subject":  run.subject.String(),
		"artifact": a.ID,
	})
	if len(a.URLs) == 0 {
		err := apperrors.NewParsing(fmt.Errorf("artifact %d has no files", a.ID), nil)
		c.recordError("artifact", idString(a.ID), err)
		return models.NotOK
	}

	named := *a
	named.Tags = c.decider.Suppress(a.Tags)
	paths := c.artifactPaths(run.subject, &named)

	decision := c.decider.Decide(a, paths...)
	if !decision.Proceed() {
		log.InfoWithFields("artifact skipped", map[string]interface{}{
			"outcome": decision.Outcome.String(),
			"reason":  decision.Reason,
		})
		if decision.Outcome.Persist() {
			c.persist(ctx, a, paths, nil)
		}
		return decision.Outcome
	}

	outcome, files := c.downloadFiles(ctx, a, rec, paths)
	if outcome == models.Aborted {
		return outcome
	}
	if outcome.Persist() {
		c.persist(ctx, a, paths, files)
	}
	if outcome == models.OK && c.sidecars.Enabled() {
		base := c.infoBase(run.subject, &named)
		info := metadata.FromDescriptor(a, named.Tags, c.site.ArtifactPageURL(a.ID), files)
		if err := c.sidecars.Write(info, base); err != nil {
			log.WithError(err).Warn("cannot write info sidecars")
		}
	}
	return outcome
}

// artifactPaths renders the destination of every page of a
func (c *Crawler) artifactPaths(subject models.Subject, a *models.ArtifactDescriptor) []string {
	out := c.cfg.Output
	template := out.FilenameFormat
	multi := a.Mode == models.ModeMultiPage
	if multi {
		template = out.FilenameMangaFormat
	}
	root := c.subjectRoot(subject)
	paths := make([]string, len(a.URLs))
	for i, u := range a.URLs {
		rel := pathtemplate.Render(template, c.meta(subject, a, u, false), i)
		if multi && out.CreateMangaDir {
			rel = pathtemplate.MangaDir(rel)
		}
		paths[i] = pathtemplate.Sanitize(rel, root)
	}
	return paths
}

// infoBase is the extension-less path shared by an artifact's sidecars
func (c *Crawler) infoBase(subject models.Subject, a *models.ArtifactDescriptor) string {
	rel := pathtemplate.Render(c.cfg.Output.FilenameInfoFormat, c.meta(subject, a, a.URLs[0], true), 0)
	return pathtemplate.Sanitize(pathtemplate.InfoName(rel), c.subjectRoot(subject))
}

func (c *Crawler) meta(subject models.Subject, a *models.ArtifactDescriptor, fileURL string, noExt bool) pathtemplate.Meta {
	m := pathtemplate.Meta{
		Artifact:      a,
		FileURL:       fileURL,
		TagsSeparator: c.cfg.Output.TagsSeparator,
		TagsLimit:     c.cfg.Output.TagsLimit,
		Now:           c.now(),
		NoExtension:   noExt,
	}
	if subject.Kind == models.KindTagQuery {
		m.SearchTags = subject.Filter.Query
	}
	return m
}

// downloadFiles fetches every page. The combined outcome is NOT_OK if any
// page failed, a skip if every page was skipped, OK otherwise.
func (c *Crawler) downloadFiles(ctx context.Context, a *models.ArtifactDescriptor, rec *models.ArtifactRecord, paths []string) (models.Outcome, []string) {
	var (
		files   []string
		failed  bool
		written bool
		larger  bool
		referer = c.site.ArtifactPageURL(a.ID)
		multi   = a.Mode == models.ModeMultiPage
		log     = c.logger.WithField("artifact", a.ID)
	)

	for i, u := range a.URLs {
		req := downloader.Request{
			URL:              u,
			Dest:             paths[i],
			Referer:          referer,
			Overwrite:        c.cfg.Output.Overwrite,
			BackupOnConflict: c.cfg.Output.BackupOldFile,
			StoredPath:       c.storedPath(ctx, a.ID, i, multi, rec),
			Created:          a.Created,
		}

		actx, release := c.interrupts.artifactContext(ctx)
		res, err := c.dl.Fetch(actx, req)
		release()

		if res.Outcome == models.Aborted {
			log.WarnWithFields("download aborted", map[string]interface{}{"page": i})
			return models.Aborted, files
		}
		if err != nil {
			log.WithError(err).ErrorWithFields("giving up on file", map[string]interface{}{
				"page":     i,
				"attempts": res.Attempts,
			})
			c.recordError("artifact", idString(a.ID), err)
			failed = true
			continue
		}

		switch res.Outcome {
		case models.OK:
			written = true
			files = append(files, res.Path)
		case models.SkipDuplicate:
			files = append(files, res.Path)
		case models.SkipLocalLarger:
			larger = true
			files = append(files, res.Path)
		default:
			if res.Fault != nil {
				c.recordError("artifact", idString(a.ID), res.Fault)
			}
			failed = true
		}
	}

	switch {
	case failed:
		return models.NotOK, files
	case written:
		return models.OK, files
	case larger:
		return models.SkipLocalLarger, files
	default:
		return models.SkipDuplicate, files
	}
}

// storedPath is where the store last saved page i of the artifact
func (c *Crawler) storedPath(ctx context.Context, id int64, page int, multi bool, rec *models.ArtifactRecord) string {
	if !multi {
		if rec != nil && rec.Saved() {
			return rec.SaveName
		}
		return ""
	}
	p, err := c.store.LookupArtifactPage(ctx, id, page)
	if err != nil || p == nil {
		return ""
	}
	return p.SaveName
}

// persist writes the artifact record and its page rows
func (c *Crawler) persist(ctx context.Context, a *models.ArtifactDescriptor, paths, files []string) {
	if len(files) == 0 {
		files = paths
	}
	rec := models.ArtifactRecord{
		ID:       a.ID,
		OwnerID:  a.OwnerID,
		Title:    a.Title,
		SaveName: files[0],
		Mode:     a.Mode,
		Created:  c.now(),
		Updated:  c.now(),
	}
	var pages []models.PageRecord
	if a.Mode == models.ModeMultiPage {
		for i, f := range files {
			pages = append(pages, models.PageRecord{ArtifactID: a.ID, Page: i, SaveName: f})
		}
	}
	if err := c.store.UpsertArtifact(ctx, rec, pages); err != nil {
		c.logger.WithError(err).WithField("artifact", a.ID).Error("cannot record artifact")
		c.recordError("artifact", idString(a.ID), apperrors.NewStorage(err, "artifact store"))
	}
}

// skipUnpopular logs an artifact below the bookmark minimum. It does not
// count toward the check updated limit.
func (c *Crawler) skipUnpopular(run *subjectRun, id int64, count int) {
	c.logger.InfoWithFields("skipping artifact below bookmark count", map[string]interface{}{
		"artifact":       id,
		"bookmark_count": count,
		"minimum":        run.subject.Filter.MinBookmarks,
	})
}
