// Package ratelimit paces requests to the site.
//
// SlidingWindow caps page requests per minute in the site client, TokenBucket
// allows a burst and then waits for a full refill, and Politeness is the
// randomized pause the traversal inserts between artifact downloads.
package ratelimit
