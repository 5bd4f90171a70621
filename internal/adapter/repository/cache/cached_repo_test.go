package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/repository/memory"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu          sync.Mutex
	entries     map[string]*domain.Listing
	generations map[string]int64
	hits        int
	failGet     bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]*domain.Listing{}, generations: map[string]int64{}}
}

func (c *mapCache) GetListing(ctx context.Context, id string) (*domain.Listing, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, 0, errors.New("connection refused")
	}
	l, ok := c.entries[id]
	if !ok {
		return nil, c.generations[id], nil
	}
	c.hits++
	return l.Clone(), c.generations[id], nil
}

func (c *mapCache) SetListing(ctx context.Context, l *domain.Listing, generation int64, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[l.ID] != generation {
		return false, nil
	}
	c.entries[l.ID] = l.Clone()
	return true, nil
}

func (c *mapCache) DeleteListing(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[id]++
	delete(c.entries, id)
	return nil
}

func (c *mapCache) cached(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

func newCachedFixture(t *testing.T) (*CachedRepository, *mapCache, string) {
	t.Helper()
	cache := newMapCache()
	repo := NewCachedRepository(memory.NewListingRepository(), cache, time.Minute, logger.NewNop())
	id, err := repo.Create(context.Background(), &domain.Listing{
		UserID:       "u",
		Title:        "Chair",
		Price:        30,
		Photos:       []domain.PhotoReference{"photos/c.jpg"},
		Marketplaces: []string{"eBay"},
	})
	require.NoError(t, err)
	return repo, cache, id
}

func TestFindByIDReadsThrough(t *testing.T) {
	repo, cache, id := newCachedFixture(t)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, cache.cached(id))

	_, err = repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

func TestStatusWritesInvalidate(t *testing.T) {
	repo, cache, id := newCachedFixture(t)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	_, err = repo.MarkPending(ctx, id, []string{"eBay"})
	require.NoError(t, err)
	assert.False(t, cache.cached(id))

	l, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, l.Status["eBay"].State)

	require.NoError(t, repo.UpdateStatus(ctx, id, "eBay", domain.StatusUpdate{Status: domain.StatusPosted, Attempt: 1}))
	l, err = repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, l.Status["eBay"].State)
}

func TestDeleteInvalidates(t *testing.T) {
	repo, cache, id := newCachedFixture(t)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, id))
	assert.False(t, cache.cached(id))

	_, err = repo.FindByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestCacheFailureFallsBack(t *testing.T) {
	repo, cache, id := newCachedFixture(t)
	cache.failGet = true

	l, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Chair", l.Title)
}

// racingRepo runs afterFind once, between the store read and the cache fill.
type racingRepo struct {
	domain.ListingRepository
	afterFind func()
}

func (r *racingRepo) FindByID(ctx context.Context, id string) (*domain.Listing, error) {
	l, err := r.ListingRepository.FindByID(ctx, id)
	if hook := r.afterFind; hook != nil {
		r.afterFind = nil
		hook()
	}
	return l, err
}

func TestDeleteDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	inner := &racingRepo{ListingRepository: memory.NewListingRepository()}
	repo := NewCachedRepository(inner, cache, time.Minute, logger.NewNop())
	id, err := repo.Create(ctx, &domain.Listing{
		UserID:       "u",
		Title:        "Desk",
		Price:        80,
		Photos:       []domain.PhotoReference{"photos/d.jpg"},
		Marketplaces: []string{"eBay"},
	})
	require.NoError(t, err)

	inner.afterFind = func() { require.NoError(t, repo.Delete(ctx, id)) }
	l, err := repo.FindByID(ctx, id)
	require.NoError(t, err, "the read started before the delete")
	assert.Equal(t, "Desk", l.Title)
	assert.False(t, cache.cached(id))

	_, err = repo.FindByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestStatusWriteDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	inner := &racingRepo{ListingRepository: memory.NewListingRepository()}
	repo := NewCachedRepository(inner, cache, time.Minute, logger.NewNop())
	id, err := repo.Create(ctx, &domain.Listing{
		UserID:       "u",
		Title:        "Desk",
		Price:        80,
		Photos:       []domain.PhotoReference{"photos/d.jpg"},
		Marketplaces: []string{"eBay"},
	})
	require.NoError(t, err)
	_, err = repo.MarkPending(ctx, id, []string{"eBay"})
	require.NoError(t, err)

	inner.afterFind = func() {
		require.NoError(t, repo.UpdateStatus(ctx, id, "eBay", domain.StatusUpdate{Status: domain.StatusPosted, Attempt: 1}))
	}
	l, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, l.Status["eBay"].State)

	l, err = repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, l.Status["eBay"].State)
}

func TestCacheReadFailureSkipsFill(t *testing.T) {
	repo, cache, id := newCachedFixture(t)
	cache.failGet = true

	_, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, cache.cached(id))
}
