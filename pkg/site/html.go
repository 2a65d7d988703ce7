package site

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "artsync/pkg/errors"
	"artsync/pkg/models"
)

func parseHTML(raw []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errs.NewParsing(fmt.Errorf("parse html: %w", err), raw)
	}
	return doc, nil
}

// hasNextPage looks for the pager's next link
func hasNextPage(doc *goquery.Document) bool {
	return doc.Find(`a[rel="next"]`).Length() > 0
}

// parseBookmarkedMembers reads the followed-accounts page. Each account is a
// list entry carrying data-user_id.
func parseBookmarkedMembers(raw []byte) (*models.PageResult, error) {
	doc, err := parseHTML(raw)
	if err != nil {
		return nil, err
	}
	res := &models.PageResult{Raw: raw}
	seen := map[int64]bool{}
	doc.Find(".members [data-user_id]").Each(func(_ int, s *goquery.Selection) {
		id, err := strconv.ParseInt(strings.TrimSpace(s.AttrOr("data-user_id", "")), 10, 64)
		if err != nil || id <= 0 || seen[id] {
			return
		}
		seen[id] = true
		res.Items = append(res.Items, models.PageItem{ID: id, OwnerID: id, BookmarkCount: -1})
	})
	res.IsLast = len(res.Items) == 0 || !hasNextPage(doc)
	return res, nil
}

// parseBookmarkedArtifacts reads a bookmarked-artifacts page
func parseBookmarkedArtifacts(raw []byte) (*models.PageResult, error) {
	doc, err := parseHTML(raw)
	if err != nil {
		return nil, err
	}
	res := &models.PageResult{Raw: raw}
	doc.Find("li.image-item").Each(func(_ int, s *goquery.Selection) {
		id, err := strconv.ParseInt(s.Find("[data-id]").First().AttrOr("data-id", ""), 10, 64)
		if err != nil || id <= 0 {
			return
		}
		owner, _ := strconv.ParseInt(s.Find("[data-user_id]").First().AttrOr("data-user_id", ""), 10, 64)
		res.Items = append(res.Items, models.PageItem{ID: id, OwnerID: owner, BookmarkCount: -1})
	})
	res.IsLast = len(res.Items) == 0 || !hasNextPage(doc)
	return res, nil
}

// parseFeed reads the followed-accounts feed. The page embeds its items as a
// JSON array in the mount point's data-items attribute.
func parseFeed(raw []byte) (*models.PageResult, error) {
	doc, err := parseHTML(raw)
	if err != nil {
		return nil, err
	}
	mount := doc.Find("#js-mount-point-latest-following")
	if mount.Length() == 0 {
		return nil, errs.NewParsing(fmt.Errorf("feed mount point not found"), raw)
	}
	var entries []feedEntry
	if err := json.Unmarshal([]byte(mount.AttrOr("data-items", "[]")), &entries); err != nil {
		return nil, errs.NewParsing(fmt.Errorf("decode feed items: %w", err), raw)
	}
	res := &models.PageResult{Raw: raw}
	for _, e := range entries {
		if id := parseID(e.IllustID); id > 0 {
			res.Items = append(res.Items, models.PageItem{ID: id, OwnerID: parseID(e.UserID), BookmarkCount: -1})
		}
	}
	res.IsLast = len(res.Items) == 0 || !hasNextPage(doc)
	return res, nil
}
