// Package dedup decides whether an artifact needs fetching. It reads the
// filesystem to test for existing files but never writes anything.
package dedup

import (
	"os"
	"strconv"
	"time"

	"artsync/pkg/config"
	"artsync/pkg/models"
)

// Rules are the filters the decision applies
type Rules struct {
	Overwrite             bool
	AlwaysCheckFileSize   bool
	AlwaysCheckFileExists bool
	// DateDiff skips artifacts older than this many days; 0 disables
	DateDiff         int
	BlacklistTags    []string
	BlacklistMembers []string
	SuppressTags     []string
}

// RulesFromConfig collects the enabled filters
func RulesFromConfig(cfg *config.Config) Rules {
	r := Rules{
		Overwrite:             cfg.Output.Overwrite,
		AlwaysCheckFileSize:   cfg.Traversal.AlwaysCheckFileSize,
		AlwaysCheckFileExists: cfg.Traversal.AlwaysCheckFileExists,
		DateDiff:              cfg.Filter.DateDiff,
	}
	if cfg.Filter.UseBlacklistTags {
		r.BlacklistTags = cfg.Filter.BlacklistTags
	}
	if cfg.Filter.UseBlacklistMembers {
		r.BlacklistMembers = cfg.Filter.BlacklistMembers
	}
	if cfg.Filter.UseSuppressTags {
		r.SuppressTags = cfg.Filter.SuppressTags
	}
	return r
}

// Decision is the verdict for one artifact. Tags is the tag set to name
// files with, with suppressed tags removed.
type Decision struct {
	Outcome models.Outcome
	Reason  string
	Tags    []string
}

// Proceed reports whether the artifact should be downloaded
func (d Decision) Proceed() bool { return d.Outcome == models.OK }

// Decider applies Rules
type Decider struct {
	rules  Rules
	tags   map[string]struct{}
	owners map[string]struct{}
	// exists and now are replaceable for tests
	exists func(path string) bool
	now    func() time.Time
}

// New creates a Decider
func New(rules Rules) *Decider {
	return &Decider{
		rules:  rules,
		tags:   toSet(rules.BlacklistTags),
		owners: toSet(rules.BlacklistMembers),
		exists: fileExists,
		now:    time.Now,
	}
}

// Known checks the stored record before the descriptor is fetched. It
// returns SkipDuplicate when the record is enough to skip the artifact and
// CheckDownload when the record points at a file that is gone. OK means
// nothing is known.
func (d *Decider) Known(rec *models.ArtifactRecord) models.Outcome {
	if rec == nil || !rec.Saved() {
		return models.OK
	}
	present := true
	if d.rules.AlwaysCheckFileExists {
		present = d.exists(rec.SaveName)
	}
	if !present {
		return models.CheckDownload
	}
	if !d.rules.Overwrite && !d.rules.AlwaysCheckFileSize {
		return models.SkipDuplicate
	}
	return models.OK
}

// Decide applies the rules in order to a fetched descriptor. paths are
// where the artifact's files would be saved. The artifact is a duplicate
// only when every one of them exists.
func (d *Decider) Decide(a *models.ArtifactDescriptor, paths ...string) Decision {
	if !d.rules.Overwrite && !d.rules.AlwaysCheckFileSize && d.allExist(paths) {
		return Decision{Outcome: models.SkipDuplicate, Reason: "file exists"}
	}

	if d.rules.DateDiff > 0 && !a.Created.IsZero() {
		cutoff := d.now().AddDate(0, 0, -d.rules.DateDiff)
		if a.Created.Before(cutoff) {
			return Decision{Outcome: models.SkipOlder, Reason: "older than " + strconv.Itoa(d.rules.DateDiff) + " day(s)"}
		}
	}

	for _, tag := range a.Tags {
		if _, ok := d.tags[tag]; ok {
			return Decision{Outcome: models.SkipBlacklist, Reason: "blacklisted tag " + tag}
		}
	}
	owner := a.OriginalOwnerID
	if owner == 0 {
		owner = a.OwnerID
	}
	if _, ok := d.owners[strconv.FormatInt(owner, 10)]; ok {
		return Decision{Outcome: models.SkipBlacklist, Reason: "blacklisted member " + strconv.FormatInt(owner, 10)}
	}

	return Decision{Outcome: models.OK, Tags: d.Suppress(a.Tags)}
}

func (d *Decider) allExist(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if p == "" || !d.exists(p) {
			return false
		}
	}
	return true
}

// Suppress returns tags without the suppressed ones. The input is not
// modified.
func (d *Decider) Suppress(tags []string) []string {
	if len(d.rules.SuppressTags) == 0 {
		return tags
	}
	drop := toSet(d.rules.SuppressTags)
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := drop[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
