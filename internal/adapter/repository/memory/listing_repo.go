package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/google/uuid"
)

// ListingRepository keeps listings in process memory. Every method works on a
// copy, so callers never share state with the store.
type ListingRepository struct {
	mu       sync.RWMutex
	listings map[string]*domain.Listing
	now      func() time.Time
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		listings: make(map[string]*domain.Listing),
		now:      time.Now,
	}
}

func (r *ListingRepository) Create(ctx context.Context, listing *domain.Listing) (string, error) {
	if err := listing.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if listing.IdempotencyKey != "" {
		for id, existing := range r.listings {
			if existing.UserID == listing.UserID && existing.IdempotencyKey == listing.IdempotencyKey {
				return "", &domain.DuplicateListingError{ExistingID: id}
			}
		}
	}

	stored := listing.Clone()
	stored.ID = uuid.NewString()
	now := r.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Version = 1
	stored.Status = make(map[string]domain.MarketplaceStatus)
	r.listings[stored.ID] = stored

	listing.ID = stored.ID
	listing.CreatedAt = now
	listing.UpdatedAt = now
	listing.Version = 1
	listing.Status = make(map[string]domain.MarketplaceStatus)
	return stored.ID, nil
}

func (r *ListingRepository) FindByID(ctx context.Context, id string) (*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return l.Clone(), nil
}

func (r *ListingRepository) FindByOwner(ctx context.Context, userID string) ([]*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Listing, 0)
	for _, l := range r.listings {
		if l.UserID == userID {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ListingRepository) MarkPending(ctx context.Context, id string, marketplaces []string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	// check the whole batch before touching anything
	for _, name := range marketplaces {
		if !l.HasMarketplace(name) {
			return nil, domain.ErrInvalidMarketplace
		}
		current, exists := l.Status[name]
		if !domain.CanMarkPending(current, exists) {
			return nil, domain.ErrConflict
		}
	}

	now := r.now()
	attempts := make(map[string]int64, len(marketplaces))
	for _, name := range marketplaces {
		next := l.Status[name].Attempt + 1
		l.Status[name] = domain.MarketplaceStatus{
			State:     domain.StatusPending,
			Attempt:   next,
			UpdatedAt: now,
		}
		attempts[name] = next
	}
	return attempts, nil
}

func (r *ListingRepository) UpdateStatus(ctx context.Context, id, marketplace string, update domain.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return domain.ErrListingNotFound
	}
	if !l.HasMarketplace(marketplace) {
		return domain.ErrInvalidMarketplace
	}
	current, exists := l.Status[marketplace]
	next, err := domain.ApplyStatusUpdate(current, exists, update)
	if err != nil {
		return err
	}
	next.UpdatedAt = r.now()
	l.Status[marketplace] = next
	return nil
}

func (r *ListingRepository) Update(ctx context.Context, listing *domain.Listing) error {
	if err := listing.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.listings[listing.ID]
	if !ok || stored.Version != listing.Version {
		return domain.ErrConflict
	}
	// a pending entry keeps its attempt counter until its outcome lands
	for name, st := range stored.Status {
		if st.State == domain.StatusPending && !listing.HasMarketplace(name) {
			return fmt.Errorf("%w: posting to %s is still in progress", domain.ErrConflict, name)
		}
	}

	stored.Title = listing.Title
	stored.Description = listing.Description
	stored.Category = listing.Category
	stored.Brand = listing.Brand
	stored.Tags = append([]string(nil), listing.Tags...)
	stored.Price = listing.Price
	stored.Marketplaces = append([]string(nil), listing.Marketplaces...)
	for name := range stored.Status {
		if !stored.HasMarketplace(name) {
			delete(stored.Status, name)
		}
	}
	stored.Version++
	stored.UpdatedAt = r.now()

	listing.Version = stored.Version
	listing.UpdatedAt = stored.UpdatedAt
	listing.Status = stored.Clone().Status
	return nil
}

func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[id]; !ok {
		return domain.ErrListingNotFound
	}
	delete(r.listings, id)
	return nil
}

func (r *ListingRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, l := range r.listings {
		if l.Category != "" {
			counts[l.Category]++
		}
	}
	top := make([]domain.CategoryCount, 0, len(counts))
	for c, n := range counts {
		top = append(top, domain.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Category < top[j].Category
	})
	if len(top) > 5 {
		top = top[:5]
	}
	return &domain.Stats{ListingCount: int64(len(r.listings)), TopCategories: top}, nil
}
