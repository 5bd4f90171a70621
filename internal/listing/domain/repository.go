package domain

import (
	"context"
	"time"
)

type ListingRepository interface {
	Create(ctx context.Context, listing *Listing) (string, error)
	FindByID(ctx context.Context, id string) (*Listing, error)
	FindByOwner(ctx context.Context, userID string) ([]*Listing, error)
	// MarkPending atomically resets every named entry to pending and returns
	// the new attempt number per marketplace.
	MarkPending(ctx context.Context, id string, marketplaces []string) (map[string]int64, error)
	UpdateStatus(ctx context.Context, id, marketplace string, update StatusUpdate) error
	Update(ctx context.Context, listing *Listing) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*Stats, error)
}

// ListingCache holds listing snapshots under a per-listing generation that
// every DeleteListing bumps. GetListing reports the generation seen on a miss,
// and SetListing stores nothing once that generation has moved on.
type ListingCache interface {
	GetListing(ctx context.Context, id string) (listing *Listing, generation int64, err error)
	SetListing(ctx context.Context, listing *Listing, generation int64, ttl time.Duration) (stored bool, err error)
	DeleteListing(ctx context.Context, id string) error
}

// PhotoStorage persists photo objects under a caller-chosen key.
type PhotoStorage interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// Generator is the external AI description service.
type Generator interface {
	Describe(ctx context.Context, image []byte, contentType string) (*CandidateListing, error)
	EstimatePrice(ctx context.Context, title, description string) (float64, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Notifier is told when a listing's distribution has converged.
type Notifier interface {
	DistributionConverged(ctx context.Context, listing *Listing) error
}
