package cache

import (
	"context"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.uber.org/zap"
)

// CachedRepository serves FindByID from the cache and drops the cached copy
// after every write, status writes included. A fill carries the cache
// generation seen before the store read, so it never lands over a newer
// invalidation. Cache failures fall back to the wrapped repository.
type CachedRepository struct {
	domain.ListingRepository
	cache  domain.ListingCache
	ttl    time.Duration
	logger *logger.Logger
}

func NewCachedRepository(repo domain.ListingRepository, cache domain.ListingCache, ttl time.Duration, log *logger.Logger) *CachedRepository {
	return &CachedRepository{
		ListingRepository: repo,
		cache:             cache,
		ttl:               ttl,
		logger:            log.Named("ListingCache"),
	}
}

func (r *CachedRepository) FindByID(ctx context.Context, id string) (*domain.Listing, error) {
	cached, generation, err := r.cache.GetListing(ctx, id)
	if err != nil {
		r.logger.Warn("Cache read failed", zap.String("listing_id", id), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}
	fill := err == nil

	listing, err := r.ListingRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !fill {
		return listing, nil
	}
	stored, err := r.cache.SetListing(ctx, listing, generation, r.ttl)
	if err != nil {
		r.logger.Warn("Cache write failed", zap.String("listing_id", id), zap.Error(err))
	} else if !stored {
		r.logger.Debug("Cache fill skipped after concurrent write", zap.String("listing_id", id))
	}
	return listing, nil
}

func (r *CachedRepository) MarkPending(ctx context.Context, id string, marketplaces []string) (map[string]int64, error) {
	attempts, err := r.ListingRepository.MarkPending(ctx, id, marketplaces)
	r.invalidate(ctx, id)
	return attempts, err
}

func (r *CachedRepository) UpdateStatus(ctx context.Context, id, marketplace string, update domain.StatusUpdate) error {
	err := r.ListingRepository.UpdateStatus(ctx, id, marketplace, update)
	r.invalidate(ctx, id)
	return err
}

func (r *CachedRepository) Update(ctx context.Context, listing *domain.Listing) error {
	err := r.ListingRepository.Update(ctx, listing)
	r.invalidate(ctx, listing.ID)
	return err
}

func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	err := r.ListingRepository.Delete(ctx, id)
	r.invalidate(ctx, id)
	return err
}

func (r *CachedRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.DeleteListing(ctx, id); err != nil {
		r.logger.Warn("Cache invalidation failed", zap.String("listing_id", id), zap.Error(err))
	}
}
