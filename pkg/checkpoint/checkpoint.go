package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	"artsync/pkg/logger"
	"artsync/pkg/models"
)

const version = 2

// Checkpoint is the saved position of one subject traversal
type Checkpoint struct {
	Kind      models.SubjectKind `json:"kind"`
	SubjectID string             `json:"subject_id"`
	Query     string             `json:"query,omitempty"`
	Cursor    models.PageCursor  `json:"cursor"`
	// EndDate bounds a tag search that looped back at the page ceiling
	EndDate time.Time `json:"end_date"`
	// Processed counts artifacts evaluated so far, across pages
	Processed int       `json:"processed"`
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// Manager reads and writes the checkpoint file of one subject
type Manager struct {
	path   string
	logger logger.Logger
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key is the file stem used for a subject
func Key(s models.Subject) string {
	key := string(s.Kind) + "_" + s.ID
	if s.Filter.Query != "" && s.Filter.Query != s.ID {
		key += "_" + s.Filter.Query
	}
	return unsafeName.ReplaceAllString(key, "_")
}

// NewManager places the checkpoint in the platform data directory
func NewManager(s models.Subject, log logger.Logger) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerInDir(filepath.Join(dataDir, "checkpoints"), s, log)
}

// NewManagerInDir places the checkpoint in dir
func NewManagerInDir(dir string, s models.Subject, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &Manager{
		path:   filepath.Join(dir, Key(s)+".checkpoint.json"),
		logger: logger.Or(log),
	}, nil
}

// Path is the checkpoint file location
func (m *Manager) Path() string { return m.path }

// Create starts a checkpoint at cursor and writes it
func (m *Manager) Create(s models.Subject, cursor models.PageCursor, runID string) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Kind:      s.Kind,
		SubjectID: s.ID,
		Query:     s.Filter.Query,
		Cursor:    cursor,
		RunID:     runID,
		CreatedAt: now,
		Version:   version,
	}
	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}
	m.logger.DebugWithFields("checkpoint created", map[string]interface{}{
		"subject": s.String(),
		"path":    m.path,
	})
	return cp, nil
}

// Load returns nil, nil when no checkpoint exists
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version != version {
		m.logger.WarnWithFields("ignoring checkpoint from another version", map[string]interface{}{
			"path":    m.path,
			"version": cp.Version,
		})
		return nil, nil
	}

	m.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"subject":   cp.SubjectID,
		"page":      cp.Cursor.Page,
		"processed": cp.Processed,
		"updated":   cp.UpdatedAt,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

// UpdateProgress records the page about to be fetched
func (m *Manager) UpdateProgress(cp *Checkpoint, cursor models.PageCursor, processed int) error {
	cp.Cursor = cursor
	cp.Processed = processed
	return m.Save(cp)
}

// UpdateWindow records a looped-back search: the new end date and the page
// it restarts from
func (m *Manager) UpdateWindow(cp *Checkpoint, cursor models.PageCursor, endDate time.Time, processed int) error {
	cp.EndDate = endDate
	return m.UpdateProgress(cp, cursor, processed)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "artsync")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "artsync")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "artsync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "artsync")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
