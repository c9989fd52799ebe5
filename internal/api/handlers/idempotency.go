package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyTTL = 24 * time.Hour
	// reservationTTL bounds how long a crashed request can hold a key.
	reservationTTL = time.Minute

	pendingMarker = "__pending__"
)

// IdempotencyCache stores payment responses keyed by the client's
// Idempotency-Key and reserves keys for in-flight requests, so two
// concurrent requests with the same key can never both reach the payment
// provider.
type IdempotencyCache interface {
	// Lookup returns the stored response for a key, if the original request
	// completed.
	Lookup(ctx context.Context, key string) (json.RawMessage, bool)
	// Reserve claims a key for the calling request. It returns false when
	// another request already holds the key, finished or in flight.
	Reserve(ctx context.Context, key string) bool
	// Store records the final response and ends the reservation.
	Store(ctx context.Context, key string, response json.RawMessage)
	// Release frees a reservation whose request failed, so the client may
	// retry under the same key.
	Release(ctx context.Context, key string)
}

// RedisIdempotency implements IdempotencyCache on the shared Redis.
type RedisIdempotency struct {
	client *redis.Client
}

// NewRedisIdempotency creates a Redis-backed idempotency cache.
func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

func (c *RedisIdempotency) cacheKey(key string) string {
	return "payment:idempotency:" + key
}

// Lookup returns the stored response. A pending reservation is not a
// response; callers see it through Reserve instead.
func (c *RedisIdempotency) Lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	val, err := c.client.Get(ctx, c.cacheKey(key)).Result()
	if err != nil || val == pendingMarker {
		return nil, false
	}
	return json.RawMessage(val), true
}

// Reserve claims the key with SETNX. A Redis failure degrades to allowing
// the request through rather than rejecting every payment.
func (c *RedisIdempotency) Reserve(ctx context.Context, key string) bool {
	ok, err := c.client.SetNX(ctx, c.cacheKey(key), pendingMarker, reservationTTL).Result()
	if err != nil {
		return true
	}
	return ok
}

// Store overwrites the reservation with the response.
func (c *RedisIdempotency) Store(ctx context.Context, key string, response json.RawMessage) {
	c.client.Set(ctx, c.cacheKey(key), []byte(response), idempotencyTTL)
}

// Release drops the reservation after a failed request.
func (c *RedisIdempotency) Release(ctx context.Context, key string) {
	c.client.Del(ctx, c.cacheKey(key))
}
