package checkpoint

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"artsync/pkg/logger"
	"artsync/pkg/models"
)

func TestCheckpointManager(t *testing.T) {
	subject := models.Subject{Kind: models.KindAccount, ID: "42"}

	t.Run("CreateAndLoad", func(t *testing.T) {
		mgr, err := NewManagerInDir(t.TempDir(), subject, logger.NewNopLogger())
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}

		cp, err := mgr.Create(subject, models.NewPageCursor(1, 2, 24), "run-1")
		if err != nil {
			t.Fatalf("Failed to create checkpoint: %v", err)
		}
		if cp.SubjectID != "42" || cp.Kind != models.KindAccount {
			t.Errorf("unexpected checkpoint %+v", cp)
		}

		loaded, err := mgr.Load()
		if err != nil {
			t.Fatalf("Failed to load checkpoint: %v", err)
		}
		if loaded == nil {
			t.Fatal("Expected checkpoint, got nil")
		}
		if loaded.Cursor.EndPage != 2 || loaded.Cursor.PageSize != 24 {
			t.Errorf("cursor not round-tripped: %+v", loaded.Cursor)
		}
		if loaded.RunID != "run-1" {
			t.Errorf("RunID = %q", loaded.RunID)
		}
	})

	t.Run("UpdateProgress", func(t *testing.T) {
		mgr, _ := NewManagerInDir(t.TempDir(), subject, nil)
		cp, err := mgr.Create(subject, models.NewPageCursor(1, 0, 24), "")
		if err != nil {
			t.Fatalf("Failed to create checkpoint: %v", err)
		}

		cursor := cp.Cursor
		cursor.Advance()
		cursor.Advance()
		if err := mgr.UpdateProgress(cp, cursor, 48); err != nil {
			t.Fatalf("Failed to update progress: %v", err)
		}

		loaded, err := mgr.Load()
		if err != nil {
			t.Fatalf("Failed to load checkpoint: %v", err)
		}
		if loaded.Cursor.Page != 3 {
			t.Errorf("Expected page 3, got %d", loaded.Cursor.Page)
		}
		if loaded.Processed != 48 {
			t.Errorf("Expected 48 processed, got %d", loaded.Processed)
		}
		if loaded.UpdatedAt.Before(loaded.CreatedAt) {
			t.Error("UpdatedAt should not precede CreatedAt")
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		mgr, _ := NewManagerInDir(t.TempDir(), subject, nil)
		cp, err := mgr.Load()
		if err != nil || cp != nil {
			t.Errorf("expected nil, nil for missing checkpoint; got %v, %v", cp, err)
		}
		if mgr.Exists() {
			t.Error("Exists should be false")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		mgr, _ := NewManagerInDir(t.TempDir(), subject, nil)
		if _, err := mgr.Create(subject, models.NewPageCursor(1, 0, 24), ""); err != nil {
			t.Fatal(err)
		}
		if !mgr.Exists() {
			t.Fatal("checkpoint should exist")
		}
		if err := mgr.Delete(); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if mgr.Exists() {
			t.Error("checkpoint should be gone")
		}
		if err := mgr.Delete(); err != nil {
			t.Errorf("second delete should be a no-op, got %v", err)
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		mgr, _ := NewManagerInDir(t.TempDir(), subject, nil)
		if err := os.WriteFile(mgr.Path(), []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := mgr.Load(); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("OtherVersionIgnored", func(t *testing.T) {
		mgr, _ := NewManagerInDir(t.TempDir(), subject, nil)
		if err := os.WriteFile(mgr.Path(), []byte(`{"version":1,"subject_id":"42"}`), 0644); err != nil {
			t.Fatal(err)
		}
		cp, err := mgr.Load()
		if err != nil || cp != nil {
			t.Errorf("old version should be ignored, got %v, %v", cp, err)
		}
	})
}

func TestKey(t *testing.T) {
	tag := models.Subject{Kind: models.KindTagQuery, ID: "landscape sky", Filter: models.Filter{Query: "landscape sky"}}
	if got := Key(tag); got != "tag_landscape_sky" {
		t.Errorf("Key = %q", got)
	}

	bm := models.Subject{Kind: models.KindImageBmarks, ID: "self", Filter: models.Filter{Query: "a/b"}}
	if got := Key(bm); strings.ContainsAny(got, "/ ") {
		t.Errorf("Key should be file-safe, got %q", got)
	}
}

func TestNewManagerUsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	mgr, err := NewManager(models.Subject{Kind: models.KindAccount, ID: "7"}, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if runtime.GOOS != "linux" {
		return
	}
	if want := filepath.Join(dir, "artsync", "checkpoints"); filepath.Dir(mgr.Path()) != want {
		t.Errorf("checkpoint dir = %s, want %s", filepath.Dir(mgr.Path()), want)
	}
}

func TestUpdateWindowKeepsEndDate(t *testing.T) {
	subject := models.Subject{Kind: models.KindTagQuery, ID: "sea", Filter: models.Filter{Query: "sea"}}
	mgr, _ := NewManagerInDir(t.TempDir(), subject, nil)
	cp, err := mgr.Create(subject, models.NewPageCursor(1, 0, 60), "")
	if err != nil {
		t.Fatalf("Failed to create checkpoint: %v", err)
	}
	if !cp.EndDate.IsZero() {
		t.Fatalf("new checkpoint has end date %v", cp.EndDate)
	}

	end := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := mgr.UpdateWindow(cp, models.NewPageCursor(1, 0, 60), end, 60000); err != nil {
		t.Fatalf("Failed to update window: %v", err)
	}

	loaded, err := mgr.Load()
	if err != nil || loaded == nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}
	if !loaded.EndDate.Equal(end) {
		t.Errorf("EndDate = %v, want %v", loaded.EndDate, end)
	}
	if loaded.Cursor.Page != 1 || loaded.Processed != 60000 {
		t.Errorf("unexpected progress %+v", loaded)
	}
}
