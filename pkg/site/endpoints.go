package site

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	// TagPageCeiling is the last search page the site serves
	TagPageCeiling = 1000
	// FeedPageCeiling is the last page of the followed-accounts feed
	FeedPageCeiling = 5000
	// BookmarkPageSize is the number of entries per bookmark page
	BookmarkPageSize = 20
)

func (c *Client) userURL(memberID int64) string {
	return fmt.Sprintf("%s/ajax/user/%d", c.baseURL, memberID)
}

func (c *Client) profileAllURL(memberID int64) string {
	return fmt.Sprintf("%s/ajax/user/%d/profile/all", c.baseURL, memberID)
}

func (c *Client) memberTagURL(memberID int64, tag string, offset, limit int) string {
	params := url.Values{}
	params.Set("tag", tag)
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	return fmt.Sprintf("%s/ajax/user/%d/illustmanga/tag?%s", c.baseURL, memberID, params.Encode())
}

// MemberPageURL is the referer used for an account's artifacts
func (c *Client) MemberPageURL(memberID int64) string {
	return fmt.Sprintf("%s/users/%d", c.baseURL, memberID)
}

// ArtifactPageURL is the referer used when downloading an artifact's files
func (c *Client) ArtifactPageURL(id int64) string {
	return fmt.Sprintf("%s/artworks/%d", c.baseURL, id)
}

func (c *Client) artifactURL(id int64) string {
	return fmt.Sprintf("%s/ajax/illust/%d", c.baseURL, id)
}

func (c *Client) artifactPagesURL(id int64) string {
	return fmt.Sprintf("%s/ajax/illust/%d/pages", c.baseURL, id)
}

func (c *Client) animationURL(id int64) string {
	return fmt.Sprintf("%s/ajax/illust/%d/ugoira_meta", c.baseURL, id)
}

// SearchOptions are the parameters of a tag search page
type SearchOptions struct {
	Query        string
	Page         int
	OldestFirst  bool
	PartialMatch bool
	TitleCaption bool
	StartDate    time.Time
	EndDate      time.Time
}

func (c *Client) searchURL(o SearchOptions) string {
	params := url.Values{}
	params.Set("word", o.Query)
	params.Set("p", strconv.Itoa(o.Page))
	if o.OldestFirst {
		params.Set("order", "date")
	} else {
		params.Set("order", "date_d")
	}
	switch {
	case o.TitleCaption:
		params.Set("s_mode", "s_tc")
	case o.PartialMatch:
		params.Set("s_mode", "s_tag")
	default:
		params.Set("s_mode", "s_tag_full")
	}
	if c.r18 {
		params.Set("mode", "r18")
	} else {
		params.Set("mode", "all")
	}
	if !o.StartDate.IsZero() {
		params.Set("scd", o.StartDate.Format("2006-01-02"))
	}
	if !o.EndDate.IsZero() {
		params.Set("ecd", o.EndDate.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s/ajax/search/artworks/%s?%s", c.baseURL, url.PathEscape(o.Query), params.Encode())
}

func restParam(visibility string) string {
	if visibility == "private" {
		return "hide"
	}
	return "show"
}

func (c *Client) bookmarkedMembersURL(visibility string, page int) string {
	params := url.Values{}
	params.Set("type", "user")
	params.Set("rest", restParam(visibility))
	params.Set("p", strconv.Itoa(page))
	return fmt.Sprintf("%s/bookmark.php?%s", c.baseURL, params.Encode())
}

func (c *Client) bookmarkedArtifactsURL(visibility, tag string, page int) string {
	params := url.Values{}
	params.Set("rest", restParam(visibility))
	params.Set("p", strconv.Itoa(page))
	if tag != "" {
		params.Set("tag", tag)
	}
	return fmt.Sprintf("%s/bookmark.php?%s", c.baseURL, params.Encode())
}

func (c *Client) feedURL(page int) string {
	mode := "all"
	if c.r18 {
		mode = "r18"
	}
	return fmt.Sprintf("%s/bookmark_new_illust.php?p=%d&mode=%s", c.baseURL, page, mode)
}

func (c *Client) groupURL(groupID, maxID string) string {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("id", groupID)
	if maxID != "" {
		params.Set("max_id", maxID)
	}
	return fmt.Sprintf("%s/group/images.php?%s", c.baseURL, params.Encode())
}

func (c *Client) sessionURL() string {
	return c.baseURL + "/ajax/user/extra"
}
