// Package cache names the Redis keys shared by the quote service.
package cache

import "strings"

const prefix = "flyer:"

// KeyQuote returns the key holding the inputs of a quote session.
func KeyQuote(id string) string {
	return prefix + "quote:" + id
}

// KeyQuoteLock returns the key serializing command batches of a session.
func KeyQuoteLock(id string) string {
	return prefix + "lock:quote:" + id
}

// KeyReference returns the key caching a reference document, e.g. the price
// table, under a normalised name.
func KeyReference(name string) string {
	return prefix + "ref:" + strings.ToLower(strings.TrimSpace(name))
}

// KeyIdempotency returns the key storing the first response of an
// Idempotency-Key request made by the given caller scope.
func KeyIdempotency(scope, digest string) string {
	if scope == "" {
		scope = "anon"
	}
	return prefix + "idem:" + scope + ":" + digest
}

// KeyRateLimit is the prefix of rate limiter windows.
func KeyRateLimit() string {
	return prefix + "ratelimit:"
}

// StreamEvents is the stream quote events are appended to.
const StreamEvents = prefix + "events"
