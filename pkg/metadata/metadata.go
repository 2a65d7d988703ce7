// Package metadata writes the info sidecars stored next to downloaded
// artifacts.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"artsync/pkg/logger"
	"artsync/pkg/models"
)

// ArtifactInfo is the sidecar content for one artifact
type ArtifactInfo struct {
	ID              int64          `json:"id"`
	OwnerID         int64          `json:"owner_id"`
	OwnerName       string         `json:"owner_name"`
	OwnerToken      string         `json:"owner_token,omitempty"`
	OriginalOwnerID int64          `json:"original_owner_id,omitempty"`
	Title           string         `json:"title"`
	Caption         string         `json:"caption,omitempty"`
	Tags            []string       `json:"tags"`
	Created         time.Time      `json:"created"`
	Mode            models.Mode    `json:"mode"`
	Pages           int            `json:"pages"`
	URLs            []string       `json:"urls"`
	Frames          []models.Frame `json:"frames,omitempty"`
	BookmarkCount   int            `json:"bookmark_count"`
	LikeCount       int            `json:"like_count"`
	ViewCount       int            `json:"view_count"`
	Link            string         `json:"link"`
	Files           []string       `json:"files,omitempty"`
	DownloadedAt    time.Time      `json:"downloaded_at"`
}

// FromDescriptor builds sidecar content. tags are the tags after
// suppression, files the local paths written for the artifact.
func FromDescriptor(a *models.ArtifactDescriptor, tags []string, link string, files []string) *ArtifactInfo {
	if tags == nil {
		tags = a.Tags
	}
	return &ArtifactInfo{
		ID:              a.ID,
		OwnerID:         a.OwnerID,
		OwnerName:       a.OwnerName,
		OwnerToken:      a.OwnerToken,
		OriginalOwnerID: a.OriginalOwnerID,
		Title:           a.Title,
		Caption:         a.Caption,
		Tags:            tags,
		Created:         a.Created,
		Mode:            a.Mode,
		Pages:           len(a.URLs),
		URLs:            a.URLs,
		Frames:          a.Frames,
		BookmarkCount:   a.BookmarkCount,
		LikeCount:       a.LikeCount,
		ViewCount:       a.ViewCount,
		Link:            link,
		Files:           files,
		DownloadedAt:    time.Now(),
	}
}

// SaveJSON writes base + ".json"
func (m *ArtifactInfo) SaveJSON(base string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return writeAtomic(base+".json", data)
}

// SaveText writes base + ".txt" as "Key = value" lines
func (m *ArtifactInfo) SaveText(base string) error {
	return writeAtomic(base+".txt", []byte(m.Text()))
}

// Text renders the .txt sidecar
func (m *ArtifactInfo) Text() string {
	var b strings.Builder
	line := func(k string, v interface{}) { fmt.Fprintf(&b, "%s = %v\n", k, v) }

	line("ArtistID", m.OwnerID)
	line("ArtistName", m.OwnerName)
	if m.OwnerToken != "" {
		line("ArtistToken", m.OwnerToken)
	}
	line("ImageID", m.ID)
	line("Title", m.Title)
	line("Caption", strings.ReplaceAll(m.Caption, "\n", " "))
	line("Tags", strings.Join(m.Tags, ", "))
	line("Image Mode", m.Mode)
	line("Pages", m.Pages)
	if !m.Created.IsZero() {
		line("Date", m.Created.Format("2006-01-02 15:04:05 -0700"))
	}
	line("Bookmark Count", m.BookmarkCount)
	line("Like Count", m.LikeCount)
	line("View Count", m.ViewCount)
	line("Link", m.Link)
	b.WriteString("URLs =\n")
	for _, u := range m.URLs {
		b.WriteString(" - " + u + "\n")
	}
	return b.String()
}

// Load reads a .json sidecar written by SaveJSON
func Load(base string) (*ArtifactInfo, error) {
	data, err := os.ReadFile(base + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	var m ArtifactInfo
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &m, nil
}

// Writer emits the sidecars enabled in the output config
type Writer struct {
	Text bool
	JSON bool
	log  logger.Logger
}

func NewWriter(text, jsonOut bool, log logger.Logger) *Writer {
	return &Writer{Text: text, JSON: jsonOut, log: logger.Or(log)}
}

// Enabled reports whether any sidecar is configured
func (w *Writer) Enabled() bool {
	return w != nil && (w.Text || w.JSON)
}

// Write saves the configured sidecars at base, which carries no extension
func (w *Writer) Write(info *ArtifactInfo, base string) error {
	if !w.Enabled() {
		return nil
	}
	if dir := filepath.Dir(base); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if w.Text {
		if err := info.SaveText(base); err != nil {
			return err
		}
	}
	if w.JSON {
		if err := info.SaveJSON(base); err != nil {
			return err
		}
	}
	w.log.DebugWithFields("sidecars written", map[string]interface{}{
		"artifact": info.ID,
		"base":     base,
	})
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace metadata file: %w", err)
	}
	return nil
}
