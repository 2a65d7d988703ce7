package site

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// envelope wraps every ajax response
type envelope struct {
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}

type userBody struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// profileBody lists every artifact id of an account. The site sends an empty
// array instead of an empty object, so the maps are decoded by hand.
type profileBody struct {
	Illusts json.RawMessage `json:"illusts"`
	Manga   json.RawMessage `json:"manga"`
}

type workEntry struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	CreateDate    string `json:"createDate"`
	BookmarkCount *int   `json:"bookmarkCount"`
}

type memberTagBody struct {
	Works []workEntry `json:"works"`
	Total int         `json:"total"`
}

type searchBody struct {
	IllustManga struct {
		Data     []workEntry `json:"data"`
		Total    int         `json:"total"`
		LastPage int         `json:"lastPage"`
	} `json:"illustManga"`
}

type illustBody struct {
	IllustID      string `json:"illustId"`
	Title         string `json:"illustTitle"`
	Comment       string `json:"illustComment"`
	Type          int    `json:"illustType"`
	CreateDate    string `json:"createDate"`
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	UserAccount   string `json:"userAccount"`
	PageCount     int    `json:"pageCount"`
	BookmarkCount int    `json:"bookmarkCount"`
	LikeCount     int    `json:"likeCount"`
	ViewCount     int    `json:"viewCount"`
	Tags          struct {
		Tags []struct {
			Tag string `json:"tag"`
		} `json:"tags"`
	} `json:"tags"`
	URLs struct {
		Original string `json:"original"`
	} `json:"urls"`
	BookmarkData json.RawMessage `json:"bookmarkData"`
}

const (
	illustTypeManga    = 1
	illustTypeAnimated = 2
)

type pageEntry struct {
	URLs struct {
		Original string `json:"original"`
	} `json:"urls"`
}

type animationBody struct {
	OriginalSrc string `json:"originalSrc"`
	Src         string `json:"src"`
	Frames      []struct {
		File  string `json:"file"`
		Delay int    `json:"delay"`
	} `json:"frames"`
}

type feedEntry struct {
	IllustID string `json:"illustId"`
	UserID   string `json:"userId"`
}

type groupResponse struct {
	Articles []struct {
		IllustID string `json:"illust_id"`
		UserID   string `json:"user_id"`
		ImgURL   string `json:"img_url"`
	} `json:"imageArticles"`
	MaxID json.Number `json:"max_id"`
}

// idSet decodes either {"123": null, ...} or [] into ids
func idSet(raw json.RawMessage) ([]int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(m))
	for k := range m {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
