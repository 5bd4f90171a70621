package mongodb

import (
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type statusDocument struct {
	State      string    `bson:"state"`
	Attempt    int64     `bson:"attempt"`
	Reason     string    `bson:"reason,omitempty"`
	ExternalID string    `bson:"external_id,omitempty"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type listingDocument struct {
	ID             primitive.ObjectID        `bson:"_id,omitempty"`
	UserID         string                    `bson:"user_id"`
	Title          string                    `bson:"title"`
	Description    string                    `bson:"description"`
	Category       string                    `bson:"category"`
	Brand          string                    `bson:"brand,omitempty"`
	Tags           []string                  `bson:"tags"`
	Price          float64                   `bson:"price"`
	Photos         []string                  `bson:"photos"`
	Marketplaces   []string                  `bson:"marketplaces"`
	Status         map[string]statusDocument `bson:"status"`
	IdempotencyKey string                    `bson:"idempotency_key,omitempty"`
	Version        int64                     `bson:"version"`
	CreatedAt      time.Time                 `bson:"created_at"`
	UpdatedAt      time.Time                 `bson:"updated_at"`
}

func toListingDocument(l *domain.Listing) (*listingDocument, error) {
	var id primitive.ObjectID
	if l.ID != "" {
		var err error
		id, err = primitive.ObjectIDFromHex(l.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid listing id %q: %w", l.ID, err)
		}
	}

	photos := make([]string, 0, len(l.Photos))
	for _, p := range l.Photos {
		photos = append(photos, string(p))
	}
	status := make(map[string]statusDocument, len(l.Status))
	for name, st := range l.Status {
		status[name] = statusDocument{
			State:      string(st.State),
			Attempt:    st.Attempt,
			Reason:     st.Reason,
			ExternalID: st.ExternalID,
			UpdatedAt:  st.UpdatedAt,
		}
	}

	return &listingDocument{
		ID:             id,
		UserID:         l.UserID,
		Title:          l.Title,
		Description:    l.Description,
		Category:       l.Category,
		Brand:          l.Brand,
		Tags:           nonNil(l.Tags),
		Price:          l.Price,
		Photos:         photos,
		Marketplaces:   nonNil(l.Marketplaces),
		Status:         status,
		IdempotencyKey: l.IdempotencyKey,
		Version:        l.Version,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}, nil
}

func (d *listingDocument) toDomain() *domain.Listing {
	photos := make([]domain.PhotoReference, 0, len(d.Photos))
	for _, p := range d.Photos {
		photos = append(photos, domain.PhotoReference(p))
	}
	status := make(map[string]domain.MarketplaceStatus, len(d.Status))
	for name, st := range d.Status {
		status[name] = st.toDomain()
	}
	return &domain.Listing{
		ID:             d.ID.Hex(),
		UserID:         d.UserID,
		Title:          d.Title,
		Description:    d.Description,
		Category:       d.Category,
		Brand:          d.Brand,
		Tags:           d.Tags,
		Price:          d.Price,
		Photos:         photos,
		Marketplaces:   d.Marketplaces,
		Status:         status,
		IdempotencyKey: d.IdempotencyKey,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (s statusDocument) toDomain() domain.MarketplaceStatus {
	return domain.MarketplaceStatus{
		State:      domain.PostingStatus(s.State),
		Attempt:    s.Attempt,
		Reason:     s.Reason,
		ExternalID: s.ExternalID,
		UpdatedAt:  s.UpdatedAt,
	}
}

// nonNil keeps arrays as [] instead of null in stored documents.
func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
