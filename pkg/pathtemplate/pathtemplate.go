// Package pathtemplate turns a filename template and artifact metadata into a
// safe relative path. Everything here is pure.
package pathtemplate

import (
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"artsync/pkg/models"
)

// MaxSegmentBytes caps a single path element
const MaxSegmentBytes = 250

// Meta is what a template can refer to besides the artifact itself
type Meta struct {
	Artifact *models.ArtifactDescriptor
	// FileURL is the source URL of the page being named
	FileURL       string
	SearchTags    string
	TagsSeparator string
	// TagsLimit caps %tags%; negative means all tags
	TagsLimit int
	Now       time.Time
	// NoExtension renders without the source file's extension, for sidecars
	NoExtension bool
}

var tokenPattern = regexp.MustCompile(`%[a-z_A-Z]+%`)

// Render expands template for the given page of an artifact. page is ignored
// for single-image artifacts. The result uses '/' as separator and has every
// token value sanitized, but is not yet joined to a root.
func Render(template string, meta Meta, page int) string {
	a := meta.Artifact
	if a == nil {
		a = &models.ArtifactDescriptor{}
	}
	urlBase := path.Base(stripQuery(meta.FileURL))
	ext := path.Ext(urlBase)
	urlName := strings.TrimSuffix(urlBase, ext)

	values := map[string]string{
		"%member_id%":          strconv.FormatInt(a.OwnerID, 10),
		"%member_token%":       a.OwnerToken,
		"%artist%":             a.OwnerName,
		"%image_id%":           strconv.FormatInt(a.ID, 10),
		"%title%":              a.Title,
		"%tags%":               joinTags(a.Tags, meta.TagsSeparator, meta.TagsLimit),
		"%bookmark_count%":     strconv.Itoa(a.BookmarkCount),
		"%urlFilename%":        urlName,
		"%searchTags%":         meta.SearchTags,
		"%original_member_id%": "",
		"%works_date%":         "",
		"%works_date_only%":    "",
		"%page_index%":         "",
		"%page_number%":        "",
		"%bookmark%":           "",
		"%date%":               meta.Now.Format("20060102"),
	}
	if a.OriginalOwnerID != 0 {
		values["%original_member_id%"] = strconv.FormatInt(a.OriginalOwnerID, 10)
	}
	if !a.Created.IsZero() {
		values["%works_date%"] = a.Created.Format("2006-01-02 15-04")
		values["%works_date_only%"] = a.Created.Format("2006-01-02")
	}
	if a.Mode == models.ModeMultiPage {
		values["%page_index%"] = strconv.Itoa(page)
		values["%page_number%"] = strconv.Itoa(page + 1)
	}
	if a.Bookmarked {
		values["%bookmark%"] = "Bookmarks"
	}

	out := tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		v, ok := values[tok]
		if !ok {
			return tok
		}
		return cleanValue(v)
	})
	if !meta.NoExtension {
		out += ext
	}
	return out
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

func joinTags(tags []string, sep string, limit int) string {
	if sep == "" {
		sep = " "
	}
	if limit >= 0 && limit < len(tags) {
		tags = tags[:limit]
	}
	return strings.Join(tags, sep)
}

// cleanValue makes a token value safe to embed in a single path segment
func cleanValue(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || isIllegal(r) {
			return '_'
		}
		return r
	}, v)
}

func isIllegal(r rune) bool {
	switch r {
	case '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return unicode.IsControl(r)
}

// Sanitize cleans every segment of a rendered relative path and joins it to
// root. Segments that would escape root are neutralized.
func Sanitize(rel, root string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	parts := strings.Split(rel, "/")
	clean := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.Map(func(r rune) rune {
			if isIllegal(r) {
				return '_'
			}
			return r
		}, p)
		p = strings.TrimLeft(p, " ")
		p = strings.TrimRight(p, ". ")
		if p == "" {
			continue
		}
		if p == ".." {
			p = "_"
		}
		clean = append(clean, truncate(p, MaxSegmentBytes, i == len(parts)-1))
	}
	return filepath.Join(append([]string{root}, clean...)...)
}

// truncate shortens s to at most n bytes on a rune boundary, keeping the
// extension of a file name.
func truncate(s string, n int, keepExt bool) string {
	if len(s) <= n {
		return s
	}
	ext := ""
	if keepExt {
		ext = path.Ext(s)
		if len(ext) >= n {
			ext = ""
		}
	}
	body := s[:len(s)-len(ext)]
	limit := n - len(ext)
	for limit > 0 && !utf8.RuneStart(body[limit]) {
		limit--
	}
	return strings.TrimRight(body[:limit], ". ") + ext
}

var mangaPage = regexp.MustCompile(`(\d+)((?:_big)?)_p(\d+)`)

// MangaDir moves the pages of a multi-page artifact into a directory named
// after the artifact: "123_p0.png" becomes "123/_p0.png". Only the first
// match is rewritten.
func MangaDir(rel string) string {
	loc := mangaPage.FindStringSubmatchIndex(rel)
	if loc == nil {
		return rel
	}
	id := rel[loc[2]:loc[3]] + rel[loc[4]:loc[5]]
	pageNo := rel[loc[6]:loc[7]]
	return rel[:loc[0]] + id + "/_p" + pageNo + rel[loc[1]:]
}

var pageSuffix = regexp.MustCompile(`_p?\d+$`)

// InfoName strips a trailing page marker so sidecars are shared by all pages
func InfoName(rendered string) string {
	return pageSuffix.ReplaceAllString(rendered, "")
}
