package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "listing:"
	generationPrefix = "listing:gen:"
	// generationTTL must outlive any single read-through.
	generationTTL = time.Hour
)

// setIfGeneration writes the snapshot only while the generation key still
// holds the value the reader saw. A missing key counts as generation 0.
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if (current or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// ListingCache stores listing snapshots in Redis as JSON.
type ListingCache struct {
	client *redis.Client
}

func NewListingCache(ctx context.Context, addr string) (*ListingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &ListingCache{client: client}, nil
}

// GetListing returns a nil listing and the current generation on a miss.
func (c *ListingCache) GetListing(ctx context.Context, id string) (*domain.Listing, int64, error) {
	values, err := c.client.MGet(ctx, keyPrefix+id, generationPrefix+id).Result()
	if err != nil {
		return nil, 0, err
	}

	var generation int64
	if raw, ok := values[1].(string); ok {
		if generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("bad generation for %s: %w", id, err)
		}
	}
	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}
	var listing domain.Listing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		return nil, generation, err
	}
	return &listing, generation, nil
}

func (c *ListingCache) SetListing(ctx context.Context, listing *domain.Listing, generation int64, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(listing)
	if err != nil {
		return false, err
	}
	n, err := setIfGeneration.Run(ctx, c.client,
		[]string{keyPrefix + listing.ID, generationPrefix + listing.ID},
		strconv.FormatInt(generation, 10), data, ttl.Milliseconds(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n == 1, nil
}

// DeleteListing drops the snapshot and moves the generation on, so a fill
// that read the store before this call can no longer land.
func (c *ListingCache) DeleteListing(ctx context.Context, id string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationPrefix+id)
		pipe.Expire(ctx, generationPrefix+id, generationTTL)
		pipe.Del(ctx, keyPrefix+id)
		return nil
	})
	return err
}

func (c *ListingCache) Close() error {
	return c.client.Close()
}
