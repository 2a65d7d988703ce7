// Package models holds the crawl domain types shared by the site client, the
// artifact store and the traversal engine.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// SubjectKind is what a traversal targets
type SubjectKind string

const (
	KindAccount     SubjectKind = "account"
	KindTagQuery    SubjectKind = "tag"
	KindBookmarks   SubjectKind = "bookmarks"
	KindGroup       SubjectKind = "group"
	KindArtistFeed  SubjectKind = "feed"
	KindImage       SubjectKind = "image"
	KindImageBmarks SubjectKind = "image_bookmarks"
)

// PageSize returns the number of items per result page for a subject kind.
// large selects the 50-item layout the site offers to some accounts.
func PageSize(kind SubjectKind, large bool) int {
	if large && (kind == KindAccount || kind == KindTagQuery) {
		return 50
	}
	switch kind {
	case KindAccount:
		return 24
	case KindGroup:
		return 50
	default:
		return 20
	}
}

// Filter narrows what a subject yields
type Filter struct {
	// Query is the tag string for tag subjects or the bookmark tag
	Query        string
	StartDate    time.Time
	EndDate      time.Time
	MinBookmarks int
	OldestFirst  bool
	PartialMatch bool
	TitleCaption bool
	// Visibility applies to bookmark subjects: public, private or both
	Visibility string
	// Limit caps the number of items for group subjects, 0 means no cap
	Limit int
}

// Subject is a crawl target. It does not change during a traversal.
type Subject struct {
	Kind      SubjectKind
	ID        string
	OutputDir string
	Filter    Filter
}

// MemberID parses the subject id as a numeric account id
func (s Subject) MemberID() (int64, error) {
	id, err := strconv.ParseInt(s.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subject %q is not a numeric id", s.ID)
	}
	return id, nil
}

func (s Subject) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// PageCursor is the traversal position over a paginated result set
type PageCursor struct {
	Page     int `json:"page"`
	EndPage  int `json:"end_page"`
	PageSize int `json:"page_size"`
}

// NewPageCursor starts at page, which is clamped to 1
func NewPageCursor(page, endPage, pageSize int) PageCursor {
	if page < 1 {
		page = 1
	}
	return PageCursor{Page: page, EndPage: endPage, PageSize: pageSize}
}

// OffsetStart is the index of the first item on the current page
func (c PageCursor) OffsetStart() int {
	return (c.Page - 1) * c.PageSize
}

// OffsetStop is the exclusive upper item index, or -1 when unbounded
func (c PageCursor) OffsetStop() int {
	if c.EndPage > 0 {
		return c.EndPage * c.PageSize
	}
	return -1
}

// PastEnd reports whether the cursor moved beyond the end page
func (c PageCursor) PastEnd() bool {
	return c.EndPage > 0 && c.Page > c.EndPage
}

// Advance moves to the next page
func (c *PageCursor) Advance() { c.Page++ }

// Reset returns to page 1, used by the tag loop-back rule
func (c *PageCursor) Reset() { c.Page = 1 }

// Mode is how an artifact is laid out
type Mode string

const (
	ModeSingle    Mode = "single"
	ModeMultiPage Mode = "multi"
	ModeAnimated  Mode = "animated"
)

// Frame is one frame of an animated artifact
type Frame struct {
	File  string `json:"file"`
	Delay int    `json:"delay"`
}

// ArtifactDescriptor describes one artifact as returned by the site
type ArtifactDescriptor struct {
	ID              int64     `json:"id"`
	OwnerID         int64     `json:"owner_id"`
	OwnerName       string    `json:"owner_name"`
	OwnerToken      string    `json:"owner_token"`
	OriginalOwnerID int64     `json:"original_owner_id,omitempty"`
	Title           string    `json:"title"`
	Caption         string    `json:"caption,omitempty"`
	Tags            []string  `json:"tags"`
	Created         time.Time `json:"created"`
	Mode            Mode      `json:"mode"`
	URLs            []string  `json:"urls"`
	Frames          []Frame   `json:"frames,omitempty"`
	BookmarkCount   int       `json:"bookmark_count"`
	LikeCount       int       `json:"like_count"`
	ViewCount       int       `json:"view_count"`
	Bookmarked      bool      `json:"bookmarked"`
}

// PageItem is one entry of a result page, before its detail is fetched
type PageItem struct {
	ID            int64
	OwnerID       int64
	BookmarkCount int
	Created       time.Time
}

// PageResult is one page of a subject listing. Raw is kept only for
// diagnostic dumps.
type PageResult struct {
	Items       []PageItem
	IsLast      bool
	SubjectName string
	// SubjectToken is the account's short handle
	SubjectToken string
	Total        int
	// NextCursor is the continuation token for cursor-paged subjects
	NextCursor string
	// External lists direct image URLs that are not site artifacts
	External []string
	Raw      []byte
}

const (
	// NotSaved marks an artifact record whose files were never written
	NotSaved = "N/A"
	// Blacklisted marks an artifact excluded by the operator
	Blacklisted = "**BLACKLISTED**"
	// NoArtifact is the cursor value of a subject that was never crawled
	NoArtifact int64 = -1
)

// ArtifactRecord is the durable state of an artifact
type ArtifactRecord struct {
	ID       int64     `json:"id"`
	OwnerID  int64     `json:"owner_id"`
	Title    string    `json:"title"`
	SaveName string    `json:"save_name"`
	Mode     Mode      `json:"mode"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// Saved reports whether the record points at written files
func (r ArtifactRecord) Saved() bool {
	return r.SaveName != "" && r.SaveName != NotSaved && r.SaveName != Blacklisted
}

// PageRecord is the saved file of one page of a multi-page artifact
type PageRecord struct {
	ArtifactID int64  `json:"artifact_id"`
	Page       int    `json:"page"`
	SaveName   string `json:"save_name"`
}

// SubjectRecord is the durable state of an account
type SubjectRecord struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SaveFolder   string    `json:"save_folder"`
	Created      time.Time `json:"created"`
	LastUpdate   time.Time `json:"last_update"`
	LastArtifact int64     `json:"last_artifact"`
	Deleted      bool      `json:"deleted"`
}

// Outcome is the result of evaluating one artifact
type Outcome int

const (
	OK Outcome = iota
	SkipDuplicate
	SkipBlacklist
	SkipOlder
	SkipLocalLarger
	Aborted
	NotOK
	// CheckDownload marks an artifact recorded as saved whose file is gone
	CheckDownload
)

var outcomeNames = [...]string{
	OK:              "ok",
	SkipDuplicate:   "skip_duplicate",
	SkipBlacklist:   "skip_blacklist",
	SkipOlder:       "skip_older",
	SkipLocalLarger: "skip_local_larger",
	Aborted:         "aborted",
	NotOK:           "not_ok",
	CheckDownload:   "check_download",
}

func (o Outcome) String() string {
	if int(o) >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Satisfied reports outcomes that mean the artifact is already on disk.
// Only these count toward the fast-skip limit.
func (o Outcome) Satisfied() bool {
	return o == SkipDuplicate || o == SkipLocalLarger
}

// Persist reports outcomes that are written back to the store
func (o Outcome) Persist() bool {
	return o == OK || o == SkipDuplicate || o == SkipLocalLarger
}
