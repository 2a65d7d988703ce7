package crawler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"artsync/internal/downloader"
	"artsync/pkg/checkpoint"
	"artsync/pkg/config"
	"artsync/pkg/dedup"
	apperrors "artsync/pkg/errors"
	"artsync/pkg/logger"
	"artsync/pkg/metadata"
	"artsync/pkg/metrics"
	"artsync/pkg/models"
	"artsync/pkg/pathtemplate"
	"artsync/pkg/ratelimit"
	"artsync/pkg/site"
	"artsync/pkg/storage"
	"artsync/pkg/ui"
)

// PageFetcher is the site surface the traversals read from
type PageFetcher interface {
	FetchMemberPage(ctx context.Context, memberID int64, cursor models.PageCursor, filter models.Filter) (*models.PageResult, error)
	FetchTagPage(ctx context.Context, filter models.Filter, cursor models.PageCursor) (*models.PageResult, error)
	FetchArtifact(ctx context.Context, id int64) (*models.ArtifactDescriptor, error)
	FetchBookmarkedMembers(ctx context.Context, visibility string, page int) (*models.PageResult, error)
	FetchBookmarkedArtifacts(ctx context.Context, visibility, tag string, page int) (*models.PageResult, error)
	FetchFeedPage(ctx context.Context, page int) (*models.PageResult, error)
	FetchGroupPage(ctx context.Context, groupID, maxID string) (*models.PageResult, error)
	ArtifactPageURL(id int64) string
}

// Downloader fetches one file
type Downloader interface {
	Fetch(ctx context.Context, req downloader.Request) (downloader.Result, error)
}

// Deps are the collaborators of a run. Site, Store and Downloader are
// required; everything else falls back to a quiet default.
type Deps struct {
	Site       PageFetcher
	Store      storage.Store
	Downloader Downloader
	Prompter   ui.Prompter
	Tracker    *ui.StatusTracker
	Metrics    *metrics.Metrics
	Errors     *apperrors.Aggregator
	Interrupts *Interrupter
	Logger     logger.Logger
	// CheckpointDir overrides the XDG checkpoint location
	CheckpointDir string
}

// Crawler is the run context shared by every traversal of one run
type Crawler struct {
	cfg        *config.Config
	site       PageFetcher
	store      storage.Store
	dl         Downloader
	decider    *dedup.Decider
	polite     *ratelimit.Politeness
	prompter   ui.Prompter
	tracker    *ui.StatusTracker
	sidecars   *metadata.Writer
	metrics    *metrics.Metrics
	errors     *apperrors.Aggregator
	interrupts *Interrupter
	logger     logger.Logger

	checkpointDir string
	runID         string
	// Resume restarts account and tag traversals at their checkpointed page
	Resume bool

	tagCeiling int

	now func() time.Time
}

// New creates the run context for cfg
func New(cfg *config.Config, deps Deps) *Crawler {
	log := logger.Or(deps.Logger)
	c := &Crawler{
		cfg:           cfg,
		site:          deps.Site,
		store:         deps.Store,
		dl:            deps.Downloader,
		decider:       dedup.New(dedup.RulesFromConfig(cfg)),
		polite:        ratelimit.NewPoliteness(cfg.Network.DownloadDelay),
		prompter:      deps.Prompter,
		tracker:       deps.Tracker,
		sidecars:      metadata.NewWriter(cfg.Output.WriteImageInfo, cfg.Output.WriteImageJSON, log),
		metrics:       deps.Metrics,
		errors:        deps.Errors,
		interrupts:    deps.Interrupts,
		checkpointDir: deps.CheckpointDir,
		runID:         uuid.NewString(),
		tagCeiling:    site.TagPageCeiling,
		now:           time.Now,
	}
	if c.prompter == nil {
		c.prompter = ui.NewBatchPrompter(log)
	}
	if c.tracker == nil {
		c.tracker = ui.NewStatusTracker(io.Discard)
		c.tracker.Quiet = true
	}
	if c.errors == nil {
		c.errors = apperrors.NewAggregator()
	}
	c.logger = log.WithField("run_id", c.runID)
	return c
}

// RunID identifies this run in logs and checkpoints
func (c *Crawler) RunID() string { return c.runID }

// Errors is the run's error aggregator
func (c *Crawler) Errors() *apperrors.Aggregator { return c.errors }

// Tracker is the run's status tracker
func (c *Crawler) Tracker() *ui.StatusTracker { return c.tracker }

// SetPoliteness replaces the inter-artifact delay controller
func (c *Crawler) SetPoliteness(p *ratelimit.Politeness) { c.polite = p }

// subjectRoot is the directory files of subject are named under
func (c *Crawler) subjectRoot(subject models.Subject) string {
	root := c.cfg.Output.RootDirectory
	if subject.OutputDir != "" {
		root = subject.OutputDir
	}
	if subject.Kind == models.KindTagQuery && c.cfg.Output.UseTagsAsDir && subject.Filter.Query != "" {
		root = pathtemplate.Sanitize(subject.Filter.Query, root)
	}
	return root
}

// dumpPage writes a raw page to the dump directory for later inspection
func (c *Crawler) dumpPage(subject models.Subject, page int, raw []byte) {
	if len(raw) == 0 || c.cfg.Output.DumpDirectory == "" {
		return
	}
	name := fmt.Sprintf("%s_%s_page%d_%s.dump", subject.Kind, subject.ID, page, c.now().Format("20060102-150405"))
	name = strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(name)
	path := filepath.Join(c.cfg.Output.DumpDirectory, name)
	if err := os.MkdirAll(c.cfg.Output.DumpDirectory, 0755); err != nil {
		c.logger.WithError(err).Warn("cannot create dump directory")
		return
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		c.logger.WithError(err).Warn("cannot write page dump")
		return
	}
	c.logger.InfoWithFields("page dumped", map[string]interface{}{
		"subject": subject.String(),
		"page":    page,
		"path":    path,
	})
}

// checkpoints opens the checkpoint manager for subject, or nil when
// checkpoints are unavailable
func (c *Crawler) checkpoints(subject models.Subject) *checkpoint.Manager {
	var (
		mgr *checkpoint.Manager
		err error
	)
	if c.checkpointDir != "" {
		mgr, err = checkpoint.NewManagerInDir(c.checkpointDir, subject, c.logger)
	} else {
		mgr, err = checkpoint.NewManager(subject, c.logger)
	}
	if err != nil {
		c.logger.WithError(err).Warn("checkpoints disabled")
		return nil
	}
	return mgr
}

// resumeCursor replaces cursor with the checkpointed one when resuming
func (c *Crawler) resumeCursor(mgr *checkpoint.Manager, subject models.Subject, cursor models.PageCursor) (models.PageCursor, *checkpoint.Checkpoint) {
	if mgr == nil {
		return cursor, nil
	}
	if c.Resume {
		cp, err := mgr.Load()
		if err != nil {
			c.logger.WithError(err).Warn("ignoring unreadable checkpoint")
		}
		if cp != nil {
			c.logger.InfoWithFields("resuming from checkpoint", map[string]interface{}{
				"subject":   subject.String(),
				"page":      cp.Cursor.Page,
				"processed": cp.Processed,
				"from_run":  cp.RunID,
			})
			if cursor.EndPage > 0 {
				cp.Cursor.EndPage = cursor.EndPage
			}
			cp.RunID = c.runID
			return cp.Cursor, cp
		}
	}
	cp, err := mgr.Create(subject, cursor, c.runID)
	if err != nil {
		c.logger.WithError(err).Warn("cannot create checkpoint")
		return cursor, nil
	}
	return cursor, cp
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
