// Package storage is the durable artifact store: which artifacts were saved
// where, and how far each account has been crawled.
//
// SQLite is the default backend, Postgres serves shared installs, and
// CachedStore puts a redis read cache in front of either. Every write goes to
// the backend first and then evicts the cache, so a lookup after a write in
// the same run always sees the write.
package storage
