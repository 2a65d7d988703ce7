package site

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	errs "artsync/pkg/errors"
	"artsync/pkg/models"
)

type profileCache struct {
	memberID int64
	ids      []int64
}

// ajax fetches an ajax endpoint and decodes its body into v
func (c *Client) ajax(ctx context.Context, url, referer string, v interface{}) ([]byte, error) {
	raw, err := c.fetch(ctx, url, referer)
	if err != nil {
		return raw, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw, errs.NewParsing(fmt.Errorf("decode %s: %w", url, err), raw)
	}
	if env.Error {
		return raw, &errs.Error{Type: errs.ErrorTypeNotFound, Message: env.Message, Page: raw}
	}
	if v != nil {
		if err := json.Unmarshal(env.Body, v); err != nil {
			return raw, errs.NewParsing(fmt.Errorf("decode %s body: %w", url, err), raw)
		}
	}
	return raw, nil
}

// memberName returns the account's display name. A missing or suspended
// account is reported as a subject_invalid fault.
func (c *Client) memberName(ctx context.Context, memberID int64) (string, error) {
	var user userBody
	raw, err := c.ajax(ctx, c.userURL(memberID), c.MemberPageURL(memberID), &user)
	if err != nil {
		if errs.Is(err, errs.ErrorTypeNotFound) {
			return "", errs.NewSubjectInvalid(fmt.Sprintf("account %d is not available: %v", memberID, err), raw)
		}
		return "", err
	}
	return user.Name, nil
}

// FetchMemberPage lists one page of an account's artifacts, newest first.
// With a filter query only artifacts carrying that tag are listed.
func (c *Client) FetchMemberPage(ctx context.Context, memberID int64, cursor models.PageCursor, filter models.Filter) (*models.PageResult, error) {
	name, err := c.memberName(ctx, memberID)
	if err != nil {
		return nil, err
	}
	start := cursor.OffsetStart()

	if filter.Query != "" {
		var body memberTagBody
		raw, err := c.ajax(ctx, c.memberTagURL(memberID, filter.Query, start, cursor.PageSize), c.MemberPageURL(memberID), &body)
		if err != nil {
			return nil, err
		}
		res := &models.PageResult{SubjectName: name, Total: body.Total, Raw: raw}
		for _, w := range body.Works {
			res.Items = append(res.Items, workItem(w))
		}
		res.IsLast = len(body.Works) == 0 || start+len(body.Works) >= body.Total
		return res, nil
	}

	ids, raw, err := c.memberIDs(ctx, memberID)
	if err != nil {
		return nil, err
	}
	end := start + cursor.PageSize
	if stop := cursor.OffsetStop(); stop > 0 && stop < end {
		end = stop
	}
	if end > len(ids) {
		end = len(ids)
	}
	res := &models.PageResult{SubjectName: name, Total: len(ids), Raw: raw}
	if start < end {
		for _, id := range ids[start:end] {
			res.Items = append(res.Items, models.PageItem{ID: id, OwnerID: memberID, BookmarkCount: -1})
		}
	}
	res.IsLast = end >= len(ids)
	return res, nil
}

// memberIDs returns every artifact id of the account, newest first
func (c *Client) memberIDs(ctx context.Context, memberID int64) ([]int64, []byte, error) {
	if c.profile != nil && c.profile.memberID == memberID {
		return c.profile.ids, nil, nil
	}
	var body profileBody
	raw, err := c.ajax(ctx, c.profileAllURL(memberID), c.MemberPageURL(memberID), &body)
	if err != nil {
		if errs.Is(err, errs.ErrorTypeNotFound) {
			return nil, raw, errs.NewSubjectInvalid(fmt.Sprintf("account %d has no artifact list: %v", memberID, err), raw)
		}
		return nil, raw, err
	}
	illusts, err := idSet(body.Illusts)
	if err != nil {
		return nil, raw, errs.NewParsing(err, raw)
	}
	manga, err := idSet(body.Manga)
	if err != nil {
		return nil, raw, errs.NewParsing(err, raw)
	}
	ids := append(illusts, manga...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	c.profile = &profileCache{memberID: memberID, ids: ids}
	return ids, raw, nil
}

func workItem(w workEntry) models.PageItem {
	item := models.PageItem{
		ID:            parseID(w.ID),
		OwnerID:       parseID(w.UserID),
		BookmarkCount: -1,
		Created:       parseDate(w.CreateDate),
	}
	if w.BookmarkCount != nil {
		item.BookmarkCount = *w.BookmarkCount
	}
	return item
}

// FetchTagPage lists one page of a tag search
func (c *Client) FetchTagPage(ctx context.Context, filter models.Filter, cursor models.PageCursor) (*models.PageResult, error) {
	var body searchBody
	raw, err := c.ajax(ctx, c.searchURL(SearchOptions{
		Query:        filter.Query,
		Page:         cursor.Page,
		OldestFirst:  filter.OldestFirst,
		PartialMatch: filter.PartialMatch,
		TitleCaption: filter.TitleCaption,
		StartDate:    filter.StartDate,
		EndDate:      filter.EndDate,
	}), c.baseURL, &body)
	if err != nil {
		return nil, err
	}
	data := body.IllustManga
	res := &models.PageResult{Total: data.Total, Raw: raw}
	for _, w := range data.Data {
		res.Items = append(res.Items, workItem(w))
	}
	res.IsLast = len(data.Data) == 0 || (data.LastPage > 0 && cursor.Page >= data.LastPage)
	return res, nil
}

// FetchArtifact returns the descriptor of one artifact with every file URL
func (c *Client) FetchArtifact(ctx context.Context, id int64) (*models.ArtifactDescriptor, error) {
	referer := c.ArtifactPageURL(id)
	var body illustBody
	if _, err := c.ajax(ctx, c.artifactURL(id), referer, &body); err != nil {
		return nil, err
	}

	a := &models.ArtifactDescriptor{
		ID:            id,
		OwnerID:       parseID(body.UserID),
		OwnerName:     body.UserName,
		OwnerToken:    body.UserAccount,
		Title:         body.Title,
		Caption:       body.Comment,
		Created:       parseDate(body.CreateDate),
		BookmarkCount: body.BookmarkCount,
		LikeCount:     body.LikeCount,
		ViewCount:     body.ViewCount,
		Bookmarked:    len(body.BookmarkData) > 0 && string(body.BookmarkData) != "null",
		Mode:          models.ModeSingle,
	}
	for _, t := range body.Tags.Tags {
		a.Tags = append(a.Tags, t.Tag)
	}

	switch {
	case body.Type == illustTypeAnimated:
		var anim animationBody
		if _, err := c.ajax(ctx, c.animationURL(id), referer, &anim); err != nil {
			return nil, err
		}
		a.Mode = models.ModeAnimated
		src := anim.OriginalSrc
		if src == "" {
			src = anim.Src
		}
		a.URLs = []string{src}
		for _, f := range anim.Frames {
			a.Frames = append(a.Frames, models.Frame{File: f.File, Delay: f.Delay})
		}
	case body.PageCount > 1 || body.Type == illustTypeManga:
		var pages []pageEntry
		if _, err := c.ajax(ctx, c.artifactPagesURL(id), referer, &pages); err != nil {
			return nil, err
		}
		a.Mode = models.ModeMultiPage
		for _, p := range pages {
			a.URLs = append(a.URLs, p.URLs.Original)
		}
	default:
		a.URLs = []string{body.URLs.Original}
	}
	return a, nil
}

// FetchBookmarkedMembers lists one page of followed accounts
func (c *Client) FetchBookmarkedMembers(ctx context.Context, visibility string, page int) (*models.PageResult, error) {
	raw, err := c.fetch(ctx, c.bookmarkedMembersURL(visibility, page), c.baseURL)
	if err != nil {
		return nil, err
	}
	return parseBookmarkedMembers(raw)
}

// FetchBookmarkedArtifacts lists one page of the user's bookmarked artifacts
func (c *Client) FetchBookmarkedArtifacts(ctx context.Context, visibility, tag string, page int) (*models.PageResult, error) {
	raw, err := c.fetch(ctx, c.bookmarkedArtifactsURL(visibility, tag, page), c.baseURL)
	if err != nil {
		return nil, err
	}
	return parseBookmarkedArtifacts(raw)
}

// FetchFeedPage lists one page of new works from followed accounts
func (c *Client) FetchFeedPage(ctx context.Context, page int) (*models.PageResult, error) {
	raw, err := c.fetch(ctx, c.feedURL(page), c.baseURL)
	if err != nil {
		return nil, err
	}
	res, err := parseFeed(raw)
	if err != nil {
		return nil, err
	}
	if page >= FeedPageCeiling {
		res.IsLast = true
	}
	return res, nil
}

// FetchGroupPage lists group articles older than maxID. Articles that are
// not site artifacts come back in External.
func (c *Client) FetchGroupPage(ctx context.Context, groupID, maxID string) (*models.PageResult, error) {
	raw, err := c.fetch(ctx, c.groupURL(groupID, maxID), c.baseURL)
	if err != nil {
		if errs.Is(err, errs.ErrorTypeNotFound) {
			return nil, errs.NewSubjectInvalid("group "+groupID+" is not available", raw)
		}
		return nil, err
	}
	var body groupResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errs.NewParsing(fmt.Errorf("decode group page: %w", err), raw)
	}

	res := &models.PageResult{Raw: raw, NextCursor: body.MaxID.String()}
	for _, a := range body.Articles {
		if id := parseID(a.IllustID); id > 0 {
			res.Items = append(res.Items, models.PageItem{ID: id, OwnerID: parseID(a.UserID), BookmarkCount: -1})
		} else if a.ImgURL != "" {
			res.External = append(res.External, a.ImgURL)
		}
	}
	res.IsLast = len(body.Articles) == 0 || res.NextCursor == "" || res.NextCursor == "0" || res.NextCursor == maxID
	return res, nil
}

// VerifySession checks that the configured cookie is a logged-in session
func (c *Client) VerifySession(ctx context.Context) error {
	raw, err := c.ajax(ctx, c.sessionURL(), c.baseURL, nil)
	switch {
	case err == nil:
		c.logger.Debug("session verified")
		return nil
	case errs.Is(err, errs.ErrorTypeAuth):
		return err
	case errs.Is(err, errs.ErrorTypeNotFound):
		e := errs.NewAuth("not logged in: " + err.Error())
		e.Page = raw
		return e
	default:
		return fmt.Errorf("verify session: %w", err)
	}
}
