package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"artsync/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS subjects (
	subject_id BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	save_folder TEXT NOT NULL DEFAULT '',
	created_date TIMESTAMPTZ NOT NULL,
	last_update_date TIMESTAMPTZ,
	last_artifact BIGINT NOT NULL DEFAULT -1,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id BIGINT PRIMARY KEY,
	subject_id BIGINT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	save_name TEXT NOT NULL DEFAULT 'N/A',
	mode TEXT NOT NULL DEFAULT '',
	created_date TIMESTAMPTZ NOT NULL,
	last_update_date TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_subject ON artifacts(subject_id);

CREATE TABLE IF NOT EXISTS artifact_pages (
	artifact_id BIGINT NOT NULL,
	page INTEGER NOT NULL,
	save_name TEXT NOT NULL,
	PRIMARY KEY (artifact_id, page)
);
`

// PostgresStore keeps the artifact store in Postgres through a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore connects and makes sure the schema exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

const artifactColumns = `artifact_id, subject_id, title, save_name, mode, created_date, last_update_date`

func scanArtifact(row pgx.Row) (*models.ArtifactRecord, error) {
	var (
		rec  models.ArtifactRecord
		mode string
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Title, &rec.SaveName, &mode, &rec.Created, &rec.Updated); err != nil {
		return nil, err
	}
	rec.Mode = models.Mode(mode)
	return &rec, nil
}

func (s *PostgresStore) LookupArtifact(ctx context.Context, id int64) (*models.ArtifactRecord, error) {
	rec, err := scanArtifact(s.pool.QueryRow(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE artifact_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup artifact %d: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresStore) LookupArtifactPage(ctx context.Context, id int64, page int) (*models.PageRecord, error) {
	rec := models.PageRecord{ArtifactID: id, Page: page}
	err := s.pool.QueryRow(ctx,
		`SELECT save_name FROM artifact_pages WHERE artifact_id = $1 AND page = $2`, id, page).
		Scan(&rec.SaveName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup artifact %d page %d: %w", id, page, err)
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertArtifact(ctx context.Context, rec models.ArtifactRecord, pages []models.PageRecord) error {
	if rec.SaveName == "" {
		rec.SaveName = models.NotSaved
	}
	now := s.now()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO artifacts (`+artifactColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (artifact_id) DO UPDATE SET
				subject_id = EXCLUDED.subject_id,
				title = EXCLUDED.title,
				save_name = EXCLUDED.save_name,
				mode = EXCLUDED.mode,
				last_update_date = EXCLUDED.last_update_date`,
			rec.ID, rec.OwnerID, rec.Title, rec.SaveName, string(rec.Mode), now)
		if err != nil {
			return fmt.Errorf("upsert artifact %d: %w", rec.ID, err)
		}
		if len(pages) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM artifact_pages WHERE artifact_id = $1`, rec.ID); err != nil {
			return fmt.Errorf("clear pages of %d: %w", rec.ID, err)
		}
		batch := &pgx.Batch{}
		for _, p := range pages {
			batch.Queue(`INSERT INTO artifact_pages (artifact_id, page, save_name) VALUES ($1, $2, $3)`, rec.ID, p.Page, p.SaveName)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, ownerID int64) ([]models.ArtifactRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE subject_id = $1 ORDER BY artifact_id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts of %d: %w", ownerID, err)
	}
	defer rows.Close()

	var out []models.ArtifactRecord
	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) BlacklistArtifact(ctx context.Context, ownerID, id int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES ($1, $2, $3, $3, '', $4, $4)
		ON CONFLICT (artifact_id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			title = EXCLUDED.title,
			save_name = EXCLUDED.save_name,
			last_update_date = EXCLUDED.last_update_date`,
		id, ownerID, models.Blacklisted, s.now())
	if err != nil {
		return fmt.Errorf("blacklist artifact %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) UpsertSubject(ctx context.Context, id int64, name, saveFolder string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subjects (subject_id, name, save_folder, created_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), subjects.name),
			save_folder = COALESCE(NULLIF(EXCLUDED.save_folder, ''), subjects.save_folder)`,
		id, name, saveFolder, s.now())
	if err != nil {
		return fmt.Errorf("upsert subject %d: %w", id, err)
	}
	return nil
}

const subjectColumns = `subject_id, name, save_folder, created_date, last_update_date, last_artifact, is_deleted`

func (s *PostgresStore) querySubjects(ctx context.Context, where string, args ...interface{}) ([]models.SubjectRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+subjectColumns+` FROM subjects `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var out []models.SubjectRecord
	for rows.Next() {
		var (
			rec        models.SubjectRecord
			lastUpdate *time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.SaveFolder, &rec.Created, &lastUpdate, &rec.LastArtifact, &rec.Deleted); err != nil {
			return nil, err
		}
		if lastUpdate != nil {
			rec.LastUpdate = *lastUpdate
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSubject(ctx context.Context, id int64) (*models.SubjectRecord, error) {
	rows, err := s.querySubjects(ctx, `WHERE subject_id = $1`, id)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (s *PostgresStore) SetSubjectDeleted(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE subjects SET is_deleted = TRUE WHERE subject_id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark subject %d deleted: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) SetSubjectCursor(ctx context.Context, id, artifactID int64) error {
	now := s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subjects (subject_id, created_date, last_update_date, last_artifact)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (subject_id) DO UPDATE SET
			last_artifact = GREATEST(subjects.last_artifact, EXCLUDED.last_artifact),
			last_update_date = EXCLUDED.last_update_date`,
		id, now, artifactID)
	if err != nil {
		return fmt.Errorf("set cursor of subject %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ListSubjects(ctx context.Context, staleDays int) ([]models.SubjectRecord, error) {
	if staleDays <= 0 {
		return s.querySubjects(ctx, `WHERE NOT is_deleted ORDER BY subject_id`)
	}
	return s.querySubjects(ctx, `
		WHERE NOT is_deleted
		AND (last_artifact = -1 OR last_update_date IS NULL OR last_update_date < $1)
		ORDER BY subject_id`, staleCutoff(s.now(), staleDays))
}

func (s *PostgresStore) DeleteSubjectCascade(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, q := range []string{
			`DELETE FROM artifact_pages WHERE artifact_id IN (SELECT artifact_id FROM artifacts WHERE subject_id = $1)`,
			`DELETE FROM artifacts WHERE subject_id = $1`,
			`DELETE FROM subjects WHERE subject_id = $1`,
		} {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return fmt.Errorf("delete subject %d: %w", id, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ImportSubjects(ctx context.Context, ids []int64) (int, error) {
	added := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := s.now()
		for _, id := range ids {
			tag, err := tx.Exec(ctx, `
				INSERT INTO subjects (subject_id, name, save_folder, created_date)
				VALUES ($1, $2, '', $3) ON CONFLICT (subject_id) DO NOTHING`,
				id, strconv.FormatInt(id, 10), now)
			if err != nil {
				return fmt.Errorf("import subject %d: %w", id, err)
			}
			added += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *PostgresStore) ExportSubjects(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT subject_id FROM subjects ORDER BY subject_id`)
	if err != nil {
		return nil, fmt.Errorf("export subjects: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
