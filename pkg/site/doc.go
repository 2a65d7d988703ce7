// Package site is the HTTP client for the art hosting site. It fetches
// listing pages (accounts, tag searches, bookmarks, the follow feed and
// groups), artifact details, and raw files for the download engine.
//
// Listing requests are throttled and 429 answers are retried with backoff.
// HTTP statuses become classified faults from pkg/errors; a removed or
// suspended account is a subject_invalid fault carrying the raw page.
package site
