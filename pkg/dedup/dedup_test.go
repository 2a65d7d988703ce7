package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"artsync/pkg/config"
	"artsync/pkg/models"
)

var today = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newDecider(rules Rules, existing ...string) *Decider {
	d := New(rules)
	files := map[string]bool{}
	for _, f := range existing {
		files[f] = true
	}
	d.exists = func(p string) bool { return files[p] }
	d.now = func() time.Time { return today }
	return d
}

func TestDecideRuleOrder(t *testing.T) {
	rules := Rules{
		DateDiff:         7,
		BlacklistTags:    []string{"spoiler"},
		BlacklistMembers: []string{"666"},
		SuppressTags:     []string{"noise"},
	}
	recent := today.AddDate(0, 0, -1)
	old := today.AddDate(0, 0, -10)

	tests := []struct {
		name     string
		artifact models.ArtifactDescriptor
		path     string
		want     models.Outcome
		tags     []string
	}{
		{
			name:     "existing file wins over every filter",
			artifact: models.ArtifactDescriptor{Created: old, Tags: []string{"spoiler"}},
			path:     "/out/a.png",
			want:     models.SkipDuplicate,
		},
		{
			name:     "older than date diff",
			artifact: models.ArtifactDescriptor{Created: old, Tags: []string{"spoiler"}},
			want:     models.SkipOlder,
		},
		{
			name:     "blacklisted tag",
			artifact: models.ArtifactDescriptor{Created: recent, Tags: []string{"cat", "spoiler"}},
			want:     models.SkipBlacklist,
		},
		{
			name:     "blacklisted original owner",
			artifact: models.ArtifactDescriptor{Created: recent, OwnerID: 1, OriginalOwnerID: 666},
			want:     models.SkipBlacklist,
		},
		{
			name:     "blacklisted owner",
			artifact: models.ArtifactDescriptor{Created: recent, OwnerID: 666},
			want:     models.SkipBlacklist,
		},
		{
			name:     "proceed strips suppressed tags",
			artifact: models.ArtifactDescriptor{Created: recent, OwnerID: 1, Tags: []string{"cat", "noise", "dog"}},
			want:     models.OK,
			tags:     []string{"cat", "dog"},
		},
		{
			name:     "undated artifact is not older",
			artifact: models.ArtifactDescriptor{OwnerID: 1},
			want:     models.OK,
			tags:     []string{},
		},
	}

	d := newDecider(rules, "/out/a.png")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Decide(&tt.artifact, tt.path)
			assert.Equal(t, tt.want, got.Outcome)
			if tt.want == models.OK {
				assert.Equal(t, tt.tags, got.Tags)
				assert.True(t, got.Proceed())
			} else {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestDecideDateCutoff(t *testing.T) {
	d := newDecider(Rules{DateDiff: 7})
	got := d.Decide(&models.ArtifactDescriptor{Created: today.AddDate(0, 0, -10)}, "")
	assert.Equal(t, models.SkipOlder, got.Outcome)

	got = d.Decide(&models.ArtifactDescriptor{Created: today.AddDate(0, 0, -6)}, "")
	assert.Equal(t, models.OK, got.Outcome)
}

func TestDecideExistingFileIgnoredWhenRecheckingSizes(t *testing.T) {
	for _, rules := range []Rules{{Overwrite: true}, {AlwaysCheckFileSize: true}} {
		d := newDecider(rules, "/out/a.png")
		got := d.Decide(&models.ArtifactDescriptor{}, "/out/a.png")
		assert.Equal(t, models.OK, got.Outcome)
	}
}

func TestDecidePartialSetIsNotDuplicate(t *testing.T) {
	d := newDecider(Rules{}, "/out/a_p0.png", "/out/a_p1.png")

	got := d.Decide(&models.ArtifactDescriptor{}, "/out/a_p0.png", "/out/a_p1.png", "/out/a_p2.png")
	assert.Equal(t, models.OK, got.Outcome, "a missing page must be downloaded")

	got = d.Decide(&models.ArtifactDescriptor{}, "/out/a_p0.png", "/out/a_p1.png")
	assert.Equal(t, models.SkipDuplicate, got.Outcome)

	got = d.Decide(&models.ArtifactDescriptor{})
	assert.Equal(t, models.OK, got.Outcome)
}

func TestDecideDoesNotModifyTags(t *testing.T) {
	d := newDecider(Rules{SuppressTags: []string{"b"}})
	a := &models.ArtifactDescriptor{Tags: []string{"a", "b"}}
	got := d.Decide(a, "")
	assert.Equal(t, []string{"a"}, got.Tags)
	assert.Equal(t, []string{"a", "b"}, a.Tags)
}

func TestKnown(t *testing.T) {
	saved := &models.ArtifactRecord{ID: 1, SaveName: "/out/1.png"}

	tests := []struct {
		name     string
		rules    Rules
		rec      *models.ArtifactRecord
		existing []string
		want     models.Outcome
	}{
		{name: "unknown artifact", rec: nil, want: models.OK},
		{name: "never saved", rec: &models.ArtifactRecord{ID: 1, SaveName: models.NotSaved}, want: models.OK},
		{name: "saved, trusted without stat", rec: saved, want: models.SkipDuplicate},
		{name: "saved and present", rules: Rules{AlwaysCheckFileExists: true}, rec: saved, existing: []string{"/out/1.png"}, want: models.SkipDuplicate},
		{name: "saved but gone", rules: Rules{AlwaysCheckFileExists: true}, rec: saved, want: models.CheckDownload},
		{name: "overwrite", rules: Rules{Overwrite: true}, rec: saved, want: models.OK},
		{name: "size recheck", rules: Rules{AlwaysCheckFileSize: true}, rec: saved, want: models.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecider(tt.rules, tt.existing...)
			assert.Equal(t, tt.want, d.Known(tt.rec))
		})
	}
}

func TestRulesFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Filter.BlacklistTags = []string{"x"}
	cfg.Filter.SuppressTags = []string{"y"}
	cfg.Filter.UseSuppressTags = true
	cfg.Filter.DateDiff = 3

	r := RulesFromConfig(cfg)
	assert.Empty(t, r.BlacklistTags)
	assert.Equal(t, []string{"y"}, r.SuppressTags)
	assert.Equal(t, 3, r.DateDiff)
}
