package usecase

import (
	"context"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.uber.org/zap"
)

const (
	SubjectListingCreated        = "listing.created"
	SubjectListingUpdated        = "listing.updated"
	SubjectListingDeleted        = "listing.deleted"
	SubjectDistributionStatus    = "listing.distribution.status"
	SubjectDistributionConverged = "listing.distribution.converged"
)

type ListingEvent struct {
	ListingID    string    `json:"listing_id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title,omitempty"`
	Marketplaces []string  `json:"marketplaces,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type DistributionStatusEvent struct {
	ListingID   string               `json:"listing_id"`
	Marketplace string               `json:"marketplace"`
	Status      domain.PostingStatus `json:"status"`
	Attempt     int64                `json:"attempt"`
	Reason      string               `json:"reason,omitempty"`
	ExternalID  string               `json:"external_id,omitempty"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

type DistributionConvergedEvent struct {
	ListingID  string                          `json:"listing_id"`
	UserID     string                          `json:"user_id"`
	Status     map[string]domain.PostingStatus `json:"marketplace_status"`
	OccurredAt time.Time                       `json:"occurred_at"`
}

// publish is best effort. A nil publisher disables events.
func publish(ctx context.Context, p domain.EventPublisher, log *logger.Logger, subject string, event interface{}) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, subject, event); err != nil {
		log.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
