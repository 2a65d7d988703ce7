package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"artsync/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS subjects (
	subject_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	save_folder TEXT NOT NULL DEFAULT '',
	created_date TIMESTAMP NOT NULL,
	last_update_date TIMESTAMP,
	last_artifact INTEGER NOT NULL DEFAULT -1,
	is_deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id INTEGER PRIMARY KEY,
	subject_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	save_name TEXT NOT NULL DEFAULT 'N/A',
	mode TEXT NOT NULL DEFAULT '',
	created_date TIMESTAMP NOT NULL,
	last_update_date TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_subject ON artifacts(subject_id);

CREATE TABLE IF NOT EXISTS artifact_pages (
	artifact_id INTEGER NOT NULL,
	page INTEGER NOT NULL,
	save_name TEXT NOT NULL,
	PRIMARY KEY (artifact_id, page)
);
`

// SQLiteStore keeps the artifact store in a single SQLite file
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps read-after-write trivially consistent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) LookupArtifact(ctx context.Context, id int64) (*models.ArtifactRecord, error) {
	var rec models.ArtifactRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact_id, subject_id, title, save_name, mode, created_date, last_update_date
		FROM artifacts WHERE artifact_id = ?`, id).
		Scan(&rec.ID, &rec.OwnerID, &rec.Title, &rec.SaveName, &rec.Mode, &rec.Created, &rec.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup artifact %d: %w", id, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) LookupArtifactPage(ctx context.Context, id int64, page int) (*models.PageRecord, error) {
	rec := models.PageRecord{ArtifactID: id, Page: page}
	err := s.db.QueryRowContext(ctx,
		`SELECT save_name FROM artifact_pages WHERE artifact_id = ? AND page = ?`, id, page).
		Scan(&rec.SaveName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup artifact %d page %d: %w", id, page, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) UpsertArtifact(ctx context.Context, rec models.ArtifactRecord, pages []models.PageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now()
	if rec.SaveName == "" {
		rec.SaveName = models.NotSaved
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO artifacts (artifact_id, subject_id, title, save_name, mode, created_date, last_update_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(artifact_id) DO UPDATE SET
			subject_id = excluded.subject_id,
			title = excluded.title,
			save_name = excluded.save_name,
			mode = excluded.mode,
			last_update_date = excluded.last_update_date`,
		rec.ID, rec.OwnerID, rec.Title, rec.SaveName, string(rec.Mode), now, now)
	if err != nil {
		return fmt.Errorf("upsert artifact %d: %w", rec.ID, err)
	}

	if len(pages) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifact_pages WHERE artifact_id = ?`, rec.ID); err != nil {
			return fmt.Errorf("clear pages of %d: %w", rec.ID, err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO artifact_pages (artifact_id, page, save_name) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range pages {
			if _, err := stmt.ExecContext(ctx, rec.ID, p.Page, p.SaveName); err != nil {
				return fmt.Errorf("insert page %d of %d: %w", p.Page, rec.ID, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, ownerID int64) ([]models.ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artifact_id, subject_id, title, save_name, mode, created_date, last_update_date
		FROM artifacts WHERE subject_id = ? ORDER BY artifact_id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts of %d: %w", ownerID, err)
	}
	defer rows.Close()

	var out []models.ArtifactRecord
	for rows.Next() {
		var rec models.ArtifactRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Title, &rec.SaveName, &rec.Mode, &rec.Created, &rec.Updated); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) BlacklistArtifact(ctx context.Context, ownerID, id int64) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO artifacts (artifact_id, subject_id, title, save_name, mode, created_date, last_update_date)
		VALUES (?, ?, ?, ?, '', ?, ?)`,
		id, ownerID, models.Blacklisted, models.Blacklisted, now, now)
	if err != nil {
		return fmt.Errorf("blacklist artifact %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSubject(ctx context.Context, id int64, name, saveFolder string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (subject_id, name, save_folder, created_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN subjects.name ELSE excluded.name END,
			save_folder = CASE WHEN excluded.save_folder = '' THEN subjects.save_folder ELSE excluded.save_folder END`,
		id, name, saveFolder, s.now())
	if err != nil {
		return fmt.Errorf("upsert subject %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) GetSubject(ctx context.Context, id int64) (*models.SubjectRecord, error) {
	rows, err := s.querySubjects(ctx, `WHERE subject_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SQLiteStore) SetSubjectDeleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE subjects SET is_deleted = 1 WHERE subject_id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark subject %d deleted: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) SetSubjectCursor(ctx context.Context, id, artifactID int64) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (subject_id, created_date, last_update_date, last_artifact)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			last_artifact = MAX(subjects.last_artifact, excluded.last_artifact),
			last_update_date = excluded.last_update_date`,
		id, now, now, artifactID)
	if err != nil {
		return fmt.Errorf("set cursor of subject %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ListSubjects(ctx context.Context, staleDays int) ([]models.SubjectRecord, error) {
	if staleDays <= 0 {
		return s.querySubjects(ctx, `WHERE is_deleted = 0 ORDER BY subject_id`)
	}
	return s.querySubjects(ctx, `
		WHERE is_deleted = 0
		AND (last_artifact = -1 OR last_update_date IS NULL OR last_update_date < ?)
		ORDER BY subject_id`, staleCutoff(s.now(), staleDays))
}

func (s *SQLiteStore) querySubjects(ctx context.Context, where string, args ...interface{}) ([]models.SubjectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, name, save_folder, created_date, last_update_date, last_artifact, is_deleted
		FROM subjects `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var out []models.SubjectRecord
	for rows.Next() {
		var (
			rec        models.SubjectRecord
			lastUpdate sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.SaveFolder, &rec.Created, &lastUpdate, &rec.LastArtifact, &rec.Deleted); err != nil {
			return nil, err
		}
		rec.LastUpdate = lastUpdate.Time
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSubjectCascade(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM artifact_pages WHERE artifact_id IN (SELECT artifact_id FROM artifacts WHERE subject_id = ?)`,
		`DELETE FROM artifacts WHERE subject_id = ?`,
		`DELETE FROM subjects WHERE subject_id = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete subject %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ImportSubjects(ctx context.Context, ids []int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	added := 0
	now := s.now()
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO subjects (subject_id, name, save_folder, created_date)
			VALUES (?, ?, '', ?)`, id, fmt.Sprint(id), now)
		if err != nil {
			return 0, fmt.Errorf("import subject %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, tx.Commit()
}

func (s *SQLiteStore) ExportSubjects(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_id FROM subjects ORDER BY subject_id`)
	if err != nil {
		return nil, fmt.Errorf("export subjects: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
