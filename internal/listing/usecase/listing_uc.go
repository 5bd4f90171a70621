package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.uber.org/zap"
)

const DefaultMaxMarketplaces = 5

// Dispatcher starts marketplace postings. Implemented by Distributor.
type Dispatcher interface {
	Distribute(ctx context.Context, listingID string, marketplaces []string) error
	Retry(ctx context.Context, listingID, marketplace string) error
}

// ListingMetrics is implemented by metrics.MetricsManager.
type ListingMetrics interface {
	ListingCreated()
}

type ListingUsecase struct {
	repo            domain.ListingRepository
	dispatcher      Dispatcher
	publisher       domain.EventPublisher
	metrics         ListingMetrics
	maxMarketplaces int
	logger          *logger.Logger
}

// NewListingUsecase builds the listing intakes. publisher and metrics may be
// nil. maxMarketplaces <= 0 disables the cap.
func NewListingUsecase(
	repo domain.ListingRepository,
	dispatcher Dispatcher,
	publisher domain.EventPublisher,
	metrics ListingMetrics,
	maxMarketplaces int,
	log *logger.Logger,
) *ListingUsecase {
	return &ListingUsecase{
		repo:            repo,
		dispatcher:      dispatcher,
		publisher:       publisher,
		metrics:         metrics,
		maxMarketplaces: maxMarketplaces,
		logger:          log.Named("listings"),
	}
}

// CreateListing persists the draft and starts distribution. A repeated
// idempotency key from the same owner returns the listing created first.
func (uc *ListingUsecase) CreateListing(ctx context.Context, userID string, draft domain.Draft) (*domain.Listing, error) {
	marketplaces, err := uc.normalizeMarketplaces(draft.Marketplaces)
	if err != nil {
		return nil, err
	}

	listing := &domain.Listing{
		UserID:         userID,
		Title:          strings.TrimSpace(draft.Title),
		Description:    strings.TrimSpace(draft.Description),
		Category:       strings.TrimSpace(draft.Category),
		Brand:          strings.TrimSpace(draft.Brand),
		Tags:           domain.Dedupe(draft.Tags),
		Price:          draft.Price,
		Photos:         append([]domain.PhotoReference(nil), draft.Photos...),
		Marketplaces:   marketplaces,
		IdempotencyKey: strings.TrimSpace(draft.IdempotencyKey),
	}
	if err := listing.Validate(); err != nil {
		return nil, err
	}

	id, err := uc.repo.Create(ctx, listing)
	if err != nil {
		var dup *domain.DuplicateListingError
		if errors.As(err, &dup) {
			return uc.resumeDuplicate(ctx, dup.ExistingID)
		}
		uc.logger.Error("Failed to create listing", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	uc.logger.Info("Listing created",
		zap.String("listing_id", id), zap.String("user_id", userID), zap.Strings("marketplaces", marketplaces))
	if uc.metrics != nil {
		uc.metrics.ListingCreated()
	}
	publish(ctx, uc.publisher, uc.logger, SubjectListingCreated, ListingEvent{
		ListingID:    id,
		UserID:       userID,
		Title:        listing.Title,
		Marketplaces: marketplaces,
		OccurredAt:   time.Now().UTC(),
	})

	if err := uc.dispatcher.Distribute(ctx, id, marketplaces); err != nil {
		uc.logger.Error("Failed to start distribution", zap.String("listing_id", id), zap.Error(err))
		return nil, err
	}
	return uc.repo.FindByID(ctx, id)
}

// resumeDuplicate returns the earlier listing, starting its distribution if a
// previous attempt stopped before dispatch.
func (uc *ListingUsecase) resumeDuplicate(ctx context.Context, id string) (*domain.Listing, error) {
	existing, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("Duplicate create request, returning existing listing", zap.String("listing_id", id))
	if domain.LifecycleOf(existing) != domain.LifecycleCreated {
		return existing, nil
	}
	if err := uc.dispatcher.Distribute(ctx, id, existing.Marketplaces); err != nil && !errors.Is(err, domain.ErrConflict) {
		return nil, err
	}
	return uc.repo.FindByID(ctx, id)
}

func (uc *ListingUsecase) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	return uc.repo.FindByID(ctx, id)
}

func (uc *ListingUsecase) ListMine(ctx context.Context, userID string) ([]*domain.Listing, error) {
	return uc.repo.FindByOwner(ctx, userID)
}

// UpdateListing edits fields and the marketplace selection. Newly selected
// marketplaces are distributed; deselected ones lose their status entry.
func (uc *ListingUsecase) UpdateListing(ctx context.Context, id, userID string, upd domain.ListingUpdate) (*domain.Listing, error) {
	listing, err := uc.ownedListing(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		listing.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		listing.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Category != nil {
		listing.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.Brand != nil {
		listing.Brand = strings.TrimSpace(*upd.Brand)
	}
	if upd.Tags != nil {
		listing.Tags = domain.Dedupe(*upd.Tags)
	}
	if upd.Price != nil {
		listing.Price = *upd.Price
	}

	var added []string
	if upd.Marketplaces != nil {
		next, err := uc.normalizeMarketplaces(*upd.Marketplaces)
		if err != nil {
			return nil, err
		}
		current := listing.Clone()
		for _, name := range current.Marketplaces {
			if contains(next, name) {
				continue
			}
			if st, ok := current.Status[name]; ok && st.State == domain.StatusPending {
				return nil, fmt.Errorf("%w: posting to %s is still in progress", domain.ErrConflict, name)
			}
		}
		for _, name := range next {
			if !current.HasMarketplace(name) {
				added = append(added, name)
			}
		}
		listing.Marketplaces = next
	}

	if err := listing.Validate(); err != nil {
		return nil, err
	}
	if err := uc.repo.Update(ctx, listing); err != nil {
		uc.logger.Warn("Failed to update listing", zap.String("listing_id", id), zap.Error(err))
		return nil, err
	}

	publish(ctx, uc.publisher, uc.logger, SubjectListingUpdated, ListingEvent{
		ListingID:    id,
		UserID:       userID,
		Title:        listing.Title,
		Marketplaces: listing.Marketplaces,
		OccurredAt:   time.Now().UTC(),
	})

	if len(added) > 0 {
		if err := uc.dispatcher.Distribute(ctx, id, added); err != nil {
			uc.logger.Error("Failed to distribute added marketplaces", zap.String("listing_id", id), zap.Error(err))
			return nil, err
		}
	}
	return uc.repo.FindByID(ctx, id)
}

// DeleteListing removes the listing. Postings still in flight finish and
// their outcomes are dropped.
func (uc *ListingUsecase) DeleteListing(ctx context.Context, id, userID string) error {
	if _, err := uc.ownedListing(ctx, id, userID); err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		uc.logger.Warn("Failed to delete listing", zap.String("listing_id", id), zap.Error(err))
		return err
	}
	uc.logger.Info("Listing deleted", zap.String("listing_id", id), zap.String("user_id", userID))
	publish(ctx, uc.publisher, uc.logger, SubjectListingDeleted, ListingEvent{
		ListingID:  id,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// RetryMarketplace re-posts a single failed marketplace entry.
func (uc *ListingUsecase) RetryMarketplace(ctx context.Context, id, userID, marketplace string) (*domain.Listing, error) {
	if _, err := uc.ownedListing(ctx, id, userID); err != nil {
		return nil, err
	}
	if err := uc.dispatcher.Retry(ctx, id, marketplace); err != nil {
		return nil, err
	}
	return uc.repo.FindByID(ctx, id)
}

func (uc *ListingUsecase) Stats(ctx context.Context) (*domain.Stats, error) {
	return uc.repo.Stats(ctx)
}

func (uc *ListingUsecase) ownedListing(ctx context.Context, id, userID string) (*domain.Listing, error) {
	listing, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.UserID != userID {
		uc.logger.Warn("Forbidden listing access",
			zap.String("listing_id", id), zap.String("owner_id", listing.UserID), zap.String("user_id", userID))
		return nil, domain.ErrForbidden
	}
	return listing, nil
}

func (uc *ListingUsecase) normalizeMarketplaces(names []string) ([]string, error) {
	out := domain.Dedupe(names)
	if uc.maxMarketplaces > 0 && len(out) > uc.maxMarketplaces {
		return nil, fmt.Errorf("%w: at most %d marketplaces can be selected", domain.ErrValidation, uc.maxMarketplaces)
	}
	for _, name := range out {
		if err := domain.ValidateMarketplaceName(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
