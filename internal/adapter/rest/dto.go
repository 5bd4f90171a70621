package rest

import (
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
)

type listingRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Brand        string   `json:"brand"`
	Tags         []string `json:"tags"`
	Price        float64  `json:"price"`
	Photos       []string `json:"photos"`
	Marketplaces []string `json:"marketplaces"`
}

func (req listingRequest) toDraft(idempotencyKey string) domain.Draft {
	photos := make([]domain.PhotoReference, 0, len(req.Photos))
	for _, p := range req.Photos {
		photos = append(photos, domain.PhotoReference(p))
	}
	return domain.Draft{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Brand:          req.Brand,
		Tags:           req.Tags,
		Price:          req.Price,
		Photos:         photos,
		Marketplaces:   req.Marketplaces,
		IdempotencyKey: idempotencyKey,
	}
}

// updateListingRequest leaves absent fields unchanged.
type updateListingRequest struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Category     *string   `json:"category"`
	Brand        *string   `json:"brand"`
	Tags         *[]string `json:"tags"`
	Price        *float64  `json:"price"`
	Marketplaces *[]string `json:"marketplaces"`
}

func (req updateListingRequest) toUpdate() domain.ListingUpdate {
	return domain.ListingUpdate{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Brand:        req.Brand,
		Tags:         req.Tags,
		Price:        req.Price,
		Marketplaces: req.Marketplaces,
	}
}

type listingResponse struct {
	ID                 string                              `json:"id"`
	UserID             string                              `json:"user_id"`
	Title              string                              `json:"title"`
	Description        string                              `json:"description"`
	Category           string                              `json:"category"`
	Brand              string                              `json:"brand,omitempty"`
	Tags               []string                            `json:"tags"`
	Price              float64                             `json:"price"`
	Photos             []domain.PhotoReference             `json:"photos"`
	Marketplaces       []string                            `json:"marketplaces"`
	MarketplaceStatus  map[string]domain.PostingStatus     `json:"marketplace_status"`
	MarketplaceDetails map[string]domain.MarketplaceStatus `json:"marketplace_details"`
	State              domain.Lifecycle                    `json:"state"`
	Version            int64                               `json:"version"`
	CreatedAt          time.Time                           `json:"created_at"`
	UpdatedAt          time.Time                           `json:"updated_at"`
}

func toListingResponse(l *domain.Listing) listingResponse {
	details := l.Status
	if details == nil {
		details = map[string]domain.MarketplaceStatus{}
	}
	return listingResponse{
		ID:                 l.ID,
		UserID:             l.UserID,
		Title:              l.Title,
		Description:        l.Description,
		Category:           l.Category,
		Brand:              l.Brand,
		Tags:               nonNil(l.Tags),
		Price:              l.Price,
		Photos:             l.Photos,
		Marketplaces:       nonNil(l.Marketplaces),
		MarketplaceStatus:  l.StatusMap(),
		MarketplaceDetails: details,
		State:              domain.LifecycleOf(l),
		Version:            l.Version,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

type photoResponse struct {
	Reference domain.PhotoReference `json:"reference"`
}

type generateRequest struct {
	Reference string `json:"reference"`
}

type priceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type priceResponse struct {
	PriceEstimate float64 `json:"price_estimate"`
}

type marketplacesResponse struct {
	Marketplaces []string `json:"marketplaces"`
}
