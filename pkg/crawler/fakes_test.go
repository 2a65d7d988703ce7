package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"artsync/internal/downloader"
	"artsync/pkg/config"
	"artsync/pkg/logger"
	"artsync/pkg/models"
)

// fakeSite serves canned listing pages and synthesizes descriptors
type fakeSite struct {
	mu sync.Mutex

	// memberPages holds the items of each account page, 1-based
	memberPages map[int][]models.PageItem
	memberName  string
	// memberErrs are returned by successive FetchMemberPage calls
	memberErrs []error
	tagPage    func(filter models.Filter, cursor models.PageCursor) *models.PageResult
	groupPages []*models.PageResult
	// created overrides the creation date of synthesized descriptors
	created   map[int64]time.Time
	bookmarks map[int64]int
	// pageCounts makes a descriptor a multi-page set
	pageCounts map[int64]int
	// artifactErrs are returned by successive FetchArtifact calls per id
	artifactErrs map[int64][]error
	// followed lists the followed accounts per visibility
	followed map[string][]int64

	memberCursors []models.PageCursor
	memberFilters []models.Filter
	tagFilters    []models.Filter
	artifactCalls []int64
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		memberPages:  map[int][]models.PageItem{},
		memberName:   "painter",
		created:      map[int64]time.Time{},
		bookmarks:    map[int64]int{},
		pageCounts:   map[int64]int{},
		artifactErrs: map[int64][]error{},
		followed:     map[string][]int64{},
	}
}

func (f *fakeSite) FetchMemberPage(_ context.Context, memberID int64, cursor models.PageCursor, filter models.Filter) (*models.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberCursors = append(f.memberCursors, cursor)
	f.memberFilters = append(f.memberFilters, filter)
	if len(f.memberErrs) > 0 {
		err := f.memberErrs[0]
		f.memberErrs = f.memberErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	items := f.memberPages[cursor.Page]
	_, hasNext := f.memberPages[cursor.Page+1]
	return &models.PageResult{Items: items, IsLast: !hasNext, SubjectName: f.memberName}, nil
}

func (f *fakeSite) FetchTagPage(_ context.Context, filter models.Filter, cursor models.PageCursor) (*models.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagFilters = append(f.tagFilters, filter)
	if f.tagPage == nil {
		return &models.PageResult{IsLast: true}, nil
	}
	return f.tagPage(filter, cursor), nil
}

func (f *fakeSite) FetchArtifact(_ context.Context, id int64) (*models.ArtifactDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifactCalls = append(f.artifactCalls, id)
	if errs := f.artifactErrs[id]; len(errs) > 0 {
		f.artifactErrs[id] = errs[1:]
		return nil, errs[0]
	}
	created, ok := f.created[id]
	if !ok {
		created = time.Now().Add(-time.Hour)
	}
	count, ok := f.bookmarks[id]
	if !ok {
		count = 100
	}
	mode := models.ModeSingle
	urls := []string{fmt.Sprintf("https://i.example/img/%d_p0.png", id)}
	if n := f.pageCounts[id]; n > 1 {
		mode = models.ModeMultiPage
		urls = urls[:0]
		for i := 0; i < n; i++ {
			urls = append(urls, pageURL(id, i))
		}
	}
	return &models.ArtifactDescriptor{
		ID:            id,
		OwnerID:       42,
		OwnerName:     f.memberName,
		OwnerToken:    "tok",
		Title:         fmt.Sprintf("work %d", id),
		Tags:          []string{"sea"},
		Created:       created,
		Mode:          mode,
		URLs:          urls,
		BookmarkCount: count,
	}, nil
}

func pageURL(id int64, page int) string {
	return fmt.Sprintf("https://i.example/img/%d_p%d.png", id, page)
}

func (f *fakeSite) FetchBookmarkedMembers(_ context.Context, visibility string, page int) (*models.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page > 1 {
		return &models.PageResult{IsLast: true}, nil
	}
	var items []models.PageItem
	for _, id := range f.followed[visibility] {
		items = append(items, models.PageItem{ID: id})
	}
	return &models.PageResult{Items: items, IsLast: true}, nil
}

func (f *fakeSite) FetchBookmarkedArtifacts(context.Context, string, string, int) (*models.PageResult, error) {
	return &models.PageResult{IsLast: true}, nil
}

func (f *fakeSite) FetchFeedPage(context.Context, int) (*models.PageResult, error) {
	return &models.PageResult{IsLast: true}, nil
}

func (f *fakeSite) FetchGroupPage(_ context.Context, _ string, maxID string) (*models.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.groupPages) == 0 {
		return &models.PageResult{IsLast: true}, nil
	}
	p := f.groupPages[0]
	f.groupPages = f.groupPages[1:]
	return p, nil
}

func (f *fakeSite) ArtifactPageURL(id int64) string {
	return fmt.Sprintf("https://site.example/artworks/%d", id)
}

func (f *fakeSite) artifactCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.artifactCalls)
}

// memStore is an in-memory artifact store
type memStore struct {
	mu        sync.Mutex
	artifacts map[int64]models.ArtifactRecord
	pages     map[int64][]models.PageRecord
	subjects  map[int64]*models.SubjectRecord
	upserts   int
	// cursorCalls records every SetSubjectCursor argument
	cursorCalls []int64
}

func newMemStore() *memStore {
	return &memStore{
		artifacts: map[int64]models.ArtifactRecord{},
		pages:     map[int64][]models.PageRecord{},
		subjects:  map[int64]*models.SubjectRecord{},
	}
}

func (s *memStore) LookupArtifact(_ context.Context, id int64) (*models.ArtifactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.artifacts[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memStore) LookupArtifactPage(_ context.Context, id int64, page int) (*models.PageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pages[id] {
		if p.Page == page {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpsertArtifact(_ context.Context, rec models.ArtifactRecord, pages []models.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.artifacts[rec.ID] = rec
	s.pages[rec.ID] = pages
	return nil
}

func (s *memStore) ListArtifacts(_ context.Context, ownerID int64) ([]models.ArtifactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ArtifactRecord
	for _, r := range s.artifacts {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) BlacklistArtifact(_ context.Context, ownerID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[id] = models.ArtifactRecord{ID: id, OwnerID: ownerID, SaveName: models.Blacklisted}
	return nil
}

func (s *memStore) subject(id int64) *models.SubjectRecord {
	rec, ok := s.subjects[id]
	if !ok {
		rec = &models.SubjectRecord{ID: id, LastArtifact: models.NoArtifact}
		s.subjects[id] = rec
	}
	return rec
}

func (s *memStore) UpsertSubject(_ context.Context, id int64, name, saveFolder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.subject(id)
	rec.Name = name
	if saveFolder != "" {
		rec.SaveFolder = saveFolder
	}
	return nil
}

func (s *memStore) GetSubject(_ context.Context, id int64) (*models.SubjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.subjects[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) SetSubjectDeleted(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject(id).Deleted = true
	return nil
}

func (s *memStore) SetSubjectCursor(_ context.Context, id, artifactID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorCalls = append(s.cursorCalls, artifactID)
	rec := s.subject(id)
	if artifactID > rec.LastArtifact {
		rec.LastArtifact = artifactID
	}
	rec.LastUpdate = time.Now()
	return nil
}

func (s *memStore) ListSubjects(_ context.Context, _ int) ([]models.SubjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SubjectRecord
	for _, r := range s.subjects {
		if !r.Deleted {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) DeleteSubjectCascade(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subjects, id)
	return nil
}

func (s *memStore) ImportSubjects(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.subject(id)
	}
	return len(ids), nil
}

func (s *memStore) ExportSubjects(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id := range s.subjects {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

// fakeDownloader records requests and answers from per-URL tables
type fakeDownloader struct {
	mu       sync.Mutex
	requests []downloader.Request
	outcomes map[string]models.Outcome
	errs     map[string]error
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{outcomes: map[string]models.Outcome{}, errs: map[string]error{}}
}

func (d *fakeDownloader) Fetch(_ context.Context, req downloader.Request) (downloader.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if err, ok := d.errs[req.URL]; ok {
		return downloader.Result{Outcome: models.NotOK, Attempts: 3}, err
	}
	outcome, ok := d.outcomes[req.URL]
	if !ok {
		outcome = models.OK
	}
	return downloader.Result{Outcome: outcome, Path: req.Dest, Size: 10, Attempts: 1}, nil
}

func (d *fakeDownloader) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.RootDirectory = t.TempDir()
	cfg.Output.DumpDirectory = t.TempDir()
	cfg.Network.DownloadDelay = 0
	cfg.Network.RetryWait = 0
	cfg.Traversal.IgnoreList = ""
	return cfg
}

type harness struct {
	cfg   *config.Config
	site  *fakeSite
	store *memStore
	dl    *fakeDownloader
	log   *logger.TestLogger
}

func newHarness(t *testing.T) *harness {
	return &harness{
		cfg:   testConfig(t),
		site:  newFakeSite(),
		store: newMemStore(),
		dl:    newFakeDownloader(),
		log:   logger.NewTestLogger(),
	}
}

func (h *harness) crawler(t *testing.T) *Crawler {
	t.Helper()
	return New(h.cfg, Deps{
		Site:          h.site,
		Store:         h.store,
		Downloader:    h.dl,
		Logger:        h.log,
		CheckpointDir: t.TempDir(),
	})
}

// items returns n page items with descending ids starting at first
func items(first int64, n int) []models.PageItem {
	out := make([]models.PageItem, n)
	for i := range out {
		out[i] = models.PageItem{ID: first - int64(i), OwnerID: 42, BookmarkCount: -1}
	}
	return out
}
