package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"artsync/pkg/logger"
	"artsync/pkg/models"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "artsync:artifact:"

// CachedStore serves artifact lookups from redis and delegates everything
// else to the wrapped store. Cache failures degrade to the backend.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

// NewCachedStore wraps inner with a redis lookup cache
func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{Store: inner, client: client, ttl: ttl, log: logger.Or(log)}
}

func artifactKey(id int64) string { return fmt.Sprintf("%s%d", cachePrefix, id) }

func pageKey(id int64, page int) string { return fmt.Sprintf("%s%d:page:%d", cachePrefix, id, page) }

func (c *CachedStore) LookupArtifact(ctx context.Context, id int64) (*models.ArtifactRecord, error) {
	var rec models.ArtifactRecord
	if c.get(ctx, artifactKey(id), &rec) {
		return &rec, nil
	}
	got, err := c.Store.LookupArtifact(ctx, id)
	if err != nil || got == nil {
		return got, err
	}
	c.set(ctx, artifactKey(id), got)
	return got, nil
}

func (c *CachedStore) LookupArtifactPage(ctx context.Context, id int64, page int) (*models.PageRecord, error) {
	var rec models.PageRecord
	if c.get(ctx, pageKey(id, page), &rec) {
		return &rec, nil
	}
	got, err := c.Store.LookupArtifactPage(ctx, id, page)
	if err != nil || got == nil {
		return got, err
	}
	c.set(ctx, pageKey(id, page), got)
	return got, nil
}

func (c *CachedStore) UpsertArtifact(ctx context.Context, rec models.ArtifactRecord, pages []models.PageRecord) error {
	if err := c.Store.UpsertArtifact(ctx, rec, pages); err != nil {
		return err
	}
	c.evictArtifact(ctx, rec.ID)
	return nil
}

func (c *CachedStore) BlacklistArtifact(ctx context.Context, ownerID, id int64) error {
	if err := c.Store.BlacklistArtifact(ctx, ownerID, id); err != nil {
		return err
	}
	c.evictArtifact(ctx, id)
	return nil
}

// DeleteSubjectCascade drops the whole artifact cache; it is an operator
// command, not part of a crawl.
func (c *CachedStore) DeleteSubjectCascade(ctx context.Context, id int64) error {
	if err := c.Store.DeleteSubjectCascade(ctx, id); err != nil {
		return err
	}
	c.evictPattern(ctx, cachePrefix+"*")
	return nil
}

func (c *CachedStore) Close() error {
	err := c.Store.Close()
	return errors.Join(err, c.client.Close())
}

func (c *CachedStore) get(ctx context.Context, key string, dst interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Debug("cache read failed")
		}
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (c *CachedStore) set(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("cache write failed")
	}
}

func (c *CachedStore) evictArtifact(ctx context.Context, id int64) {
	c.client.Del(ctx, artifactKey(id))
	c.evictPattern(ctx, fmt.Sprintf("%s%d:page:*", cachePrefix, id))
}

func (c *CachedStore) evictPattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).Warn("cache eviction incomplete")
	}
}
