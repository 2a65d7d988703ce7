package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "artsync/pkg/errors"
	"artsync/pkg/models"
)

// CommandKind is a top-level crawl operation
type CommandKind string

const (
	CmdMember         CommandKind = "member"
	CmdTags           CommandKind = "tags"
	CmdTagsList       CommandKind = "tags-list"
	CmdBookmarks      CommandKind = "bookmarks"
	CmdImageBookmarks CommandKind = "image-bookmarks"
	CmdFeed           CommandKind = "feed"
	CmdGroup          CommandKind = "group"
	CmdImage          CommandKind = "image"
	CmdList           CommandKind = "list"
)

const dateLayout = "2006-01-02"

// Command is one validated crawl operation with its arguments
type Command struct {
	Kind CommandKind `yaml:"command"`
	// IDs are member ids, artifact ids or tag queries depending on Kind
	IDs        []string `yaml:"ids,omitempty"`
	File       string   `yaml:"file,omitempty"`
	Page       int      `yaml:"page,omitempty"`
	EndPage    int      `yaml:"end_page,omitempty"`
	OutputDir  string   `yaml:"output_dir,omitempty"`
	Visibility string   `yaml:"visibility,omitempty"`
	Tag        string   `yaml:"tag,omitempty"`
	Limit      int      `yaml:"limit,omitempty"`
	// Export writes the followed accounts to this file instead of crawling them
	Export string `yaml:"export,omitempty"`

	StartDate    string `yaml:"start_date,omitempty"`
	EndDate      string `yaml:"end_date,omitempty"`
	MinBookmarks int    `yaml:"bookmark_count,omitempty"`
	OldestFirst  bool   `yaml:"oldest_first,omitempty"`
	PartialMatch bool   `yaml:"partial_match,omitempty"`
	TitleCaption bool   `yaml:"title_caption,omitempty"`
}

func (c Command) String() string {
	if len(c.IDs) > 0 {
		return string(c.Kind) + " " + strings.Join(c.IDs, ",")
	}
	if c.File != "" {
		return string(c.Kind) + " " + c.File
	}
	return string(c.Kind)
}

// Validate checks the arguments each kind needs
func (c Command) Validate() error {
	if c.Page < 0 || c.EndPage < 0 || c.Limit < 0 || c.MinBookmarks < 0 {
		return fmt.Errorf("%s: page, end_page, limit and bookmark_count cannot be negative", c.Kind)
	}
	if c.EndPage > 0 && c.Page > c.EndPage {
		return fmt.Errorf("%s: page %d is after end_page %d", c.Kind, c.Page, c.EndPage)
	}
	if c.Export != "" && c.Kind != CmdBookmarks {
		return fmt.Errorf("%s: export only applies to bookmarks", c.Kind)
	}
	switch c.Kind {
	case CmdMember, CmdImage:
		if len(c.IDs) == 0 {
			return fmt.Errorf("%s: at least one id is required", c.Kind)
		}
		for _, id := range c.IDs {
			if _, err := strconv.ParseInt(id, 10, 64); err != nil {
				return fmt.Errorf("%s: %q is not a numeric id", c.Kind, id)
			}
		}
	case CmdTags:
		if len(c.IDs) == 0 {
			return fmt.Errorf("tags: a query is required")
		}
	case CmdGroup:
		if len(c.IDs) == 0 {
			return fmt.Errorf("group: a group id is required")
		}
	case CmdTagsList:
		if c.File == "" {
			return fmt.Errorf("tags-list: a file is required")
		}
	case CmdBookmarks, CmdImageBookmarks:
		switch c.Visibility {
		case "", "public", "private", "both":
		default:
			return fmt.Errorf("%s: visibility must be public, private or both", c.Kind)
		}
	case CmdFeed, CmdList:
	default:
		return fmt.Errorf("unknown command %q", c.Kind)
	}
	if _, err := c.Filter(); err != nil {
		return err
	}
	return nil
}

// Filter builds the subject filter from the date and popularity arguments
func (c Command) Filter() (models.Filter, error) {
	f := models.Filter{
		MinBookmarks: c.MinBookmarks,
		OldestFirst:  c.OldestFirst,
		PartialMatch: c.PartialMatch,
		TitleCaption: c.TitleCaption,
		Visibility:   c.Visibility,
		Limit:        c.Limit,
	}
	var err error
	if f.StartDate, err = parseDate(c.StartDate); err != nil {
		return f, fmt.Errorf("%s: start_date: %w", c.Kind, err)
	}
	if f.EndDate, err = parseDate(c.EndDate); err != nil {
		return f, fmt.Errorf("%s: end_date: %w", c.Kind, err)
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return f, fmt.Errorf("%s: end_date is before start_date", c.Kind)
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// Batch is a list of commands run in order
type Batch struct {
	Jobs []Command `yaml:"jobs"`
}

// LoadBatch decodes and validates a batch file
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return ParseBatch(data)
}

// ParseBatch decodes a batch document. Unknown keys are rejected.
func ParseBatch(data []byte) (*Batch, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var b Batch
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	var errs []error
	for i, job := range b.Jobs {
		if err := job.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", i+1, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &b, nil
}

// Execute runs one command. It returns an error only when the run must
// stop: cancellation or a fatal fault.
func (c *Crawler) Execute(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		cfgErr := apperrors.NewConfig(err)
		c.errors.SetFatal(cfgErr)
		return cfgErr
	}
	filter, _ := cmd.Filter()
	page := cmd.Page
	if page == 0 {
		page = 1
	}
	c.logger.InfoWithFields("command started", map[string]interface{}{
		"command": cmd.String(),
		"page":    page,
		"end":     cmd.EndPage,
	})

	var err error
	switch cmd.Kind {
	case CmdMember:
		filter.Query = cmd.Tag
		for _, id := range cmd.IDs {
			s := models.Subject{Kind: models.KindAccount, ID: id, OutputDir: cmd.OutputDir, Filter: filter}
			if _, err = c.RunMember(ctx, s, page, cmd.EndPage); err != nil {
				break
			}
		}
	case CmdTags:
		for _, q := range cmd.IDs {
			f := filter
			f.Query = q
			s := models.Subject{Kind: models.KindTagQuery, ID: q, OutputDir: cmd.OutputDir, Filter: f}
			if _, err = c.RunTags(ctx, s, page, cmd.EndPage); err != nil {
				break
			}
		}
	case CmdTagsList:
		_, err = c.RunTagsList(ctx, cmd.File, filter, page, cmd.EndPage)
	case CmdBookmarks:
		if cmd.Export != "" {
			// a failed write is already recorded and does not stop a batch
			if _, err = c.ExportBookmarks(ctx, visibilityOr(cmd.Visibility), cmd.Export); apperrors.Is(err, apperrors.ErrorTypeStorage) {
				err = nil
			}
			break
		}
		_, err = c.RunBookmarks(ctx, visibilityOr(cmd.Visibility), page, cmd.EndPage)
	case CmdImageBookmarks:
		_, err = c.RunImageBookmarks(ctx, visibilityOr(cmd.Visibility), cmd.Tag, page, cmd.EndPage)
	case CmdFeed:
		_, err = c.RunFeed(ctx, page, cmd.EndPage)
	case CmdGroup:
		for _, id := range cmd.IDs {
			if _, err = c.RunGroup(ctx, id, cmd.Limit); err != nil {
				break
			}
		}
	case CmdImage:
		for _, s := range cmd.IDs {
			id, _ := strconv.ParseInt(s, 10, 64)
			if _, err = c.RunImage(ctx, id); err != nil {
				break
			}
		}
	case CmdList:
		_, err = c.RunList(ctx, cmd.File, page, cmd.EndPage)
	}
	return err
}

func visibilityOr(v string) string {
	if v == "" {
		return "public"
	}
	return v
}

// RunBatch executes jobs in order. After each job the aggregator is drained
// and report receives the entries. Only cancellation or a fatal fault stops
// the batch early.
func (c *Crawler) RunBatch(ctx context.Context, b *Batch, report func(cmd Command, failures []apperrors.Entry)) error {
	for i, job := range b.Jobs {
		c.logger.InfoWithFields("batch job", map[string]interface{}{
			"index":   i + 1,
			"total":   len(b.Jobs),
			"command": job.String(),
		})
		err := c.Execute(ctx, job)
		if report != nil {
			report(job, c.errors.Drain())
		}
		if err != nil {
			return err
		}
	}
	return nil
}
