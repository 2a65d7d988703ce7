package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"artsync/pkg/config"
	"artsync/pkg/logger"
	"artsync/pkg/models"

	"github.com/redis/go-redis/v9"
)

// Store is the narrow interface the crawler and the db commands use
type Store interface {
	// LookupArtifact returns nil, nil when the artifact is unknown
	LookupArtifact(ctx context.Context, id int64) (*models.ArtifactRecord, error)
	// LookupArtifactPage returns nil, nil when the page is unknown
	LookupArtifactPage(ctx context.Context, id int64, page int) (*models.PageRecord, error)
	// UpsertArtifact writes the record and replaces its page rows
	UpsertArtifact(ctx context.Context, rec models.ArtifactRecord, pages []models.PageRecord) error
	ListArtifacts(ctx context.Context, ownerID int64) ([]models.ArtifactRecord, error)
	BlacklistArtifact(ctx context.Context, ownerID, id int64) error

	// UpsertSubject creates the subject if needed and refreshes its name.
	// An empty saveFolder leaves the stored folder alone.
	UpsertSubject(ctx context.Context, id int64, name, saveFolder string) error
	// GetSubject returns nil, nil when the subject is unknown
	GetSubject(ctx context.Context, id int64) (*models.SubjectRecord, error)
	SetSubjectDeleted(ctx context.Context, id int64) error
	// SetSubjectCursor records the last processed artifact. The stored
	// value never decreases.
	SetSubjectCursor(ctx context.Context, id, artifactID int64) error
	// ListSubjects returns live subjects; staleDays > 0 keeps only those never
	// crawled or not updated for more than that many days.
	ListSubjects(ctx context.Context, staleDays int) ([]models.SubjectRecord, error)
	DeleteSubjectCascade(ctx context.Context, id int64) error
	ImportSubjects(ctx context.Context, ids []int64) (int, error)
	ExportSubjects(ctx context.Context) ([]int64, error)

	Close() error
}

// Open builds the configured backend, wrapped in a redis cache when an
// address is configured.
func Open(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Store, error) {
	log = logger.Or(log)

	var (
		inner Store
		err   error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		inner, err = NewSQLiteStore(cfg.Path)
	case "postgres":
		inner, err = NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.DebugWithFields("artifact store opened", map[string]interface{}{"driver": cfg.Driver})

	if cfg.RedisAddr == "" {
		return inner, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, continuing without lookup cache")
		_ = client.Close()
		return inner, nil
	}
	return NewCachedStore(inner, client, cfg.RedisTTL, log), nil
}

// staleCutoff returns the oldest last-update time that is still fresh
func staleCutoff(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}
