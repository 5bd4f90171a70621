package domain

import (
	"fmt"
	"strings"
	"time"
)

// PostingStatus is the state of one marketplace entry in a listing's status map.
type PostingStatus string

const (
	StatusPending PostingStatus = "pending"
	StatusPosted  PostingStatus = "posted"
	StatusFailed  PostingStatus = "failed"
)

// IsTerminal reports whether no further transition happens without a retry.
func (s PostingStatus) IsTerminal() bool {
	return s == StatusPosted || s == StatusFailed
}

func (s PostingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPosted, StatusFailed:
		return true
	}
	return false
}

// Failure reasons recorded on failed entries.
const (
	ReasonUnknownMarketplace = "unknown_marketplace"
	ReasonTimeout            = "timeout"
	ReasonAdapterPanic       = "adapter_panic"
)

// PhotoReference is the opaque token issued by the photo store.
type PhotoReference string

// MarketplaceStatus is one entry of the status map. Attempt grows by one on
// every reset to pending and tags the terminal write of that attempt.
type MarketplaceStatus struct {
	State      PostingStatus `json:"state"`
	Attempt    int64         `json:"attempt"`
	Reason     string        `json:"reason,omitempty"`
	ExternalID string        `json:"external_id,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type Listing struct {
	ID             string
	UserID         string
	Title          string
	Description    string
	Category       string
	Brand          string
	Tags           []string
	Price          float64
	Photos         []PhotoReference
	Marketplaces   []string
	Status         map[string]MarketplaceStatus
	IdempotencyKey string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusMap projects the status entries to their bare state.
func (l *Listing) StatusMap() map[string]PostingStatus {
	out := make(map[string]PostingStatus, len(l.Status))
	for name, st := range l.Status {
		out[name] = st.State
	}
	return out
}

// HasMarketplace reports whether name is in the selected set.
func (l *Listing) HasMarketplace(name string) bool {
	for _, m := range l.Marketplaces {
		if m == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of a repository.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	c.Tags = append([]string(nil), l.Tags...)
	c.Photos = append([]PhotoReference(nil), l.Photos...)
	c.Marketplaces = append([]string(nil), l.Marketplaces...)
	c.Status = make(map[string]MarketplaceStatus, len(l.Status))
	for k, v := range l.Status {
		c.Status[k] = v
	}
	return &c
}

// Validate checks the invariants required to persist a listing.
func (l *Listing) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	if l.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if len(l.Photos) == 0 {
		return fmt.Errorf("%w: at least one photo reference is required", ErrValidation)
	}
	for _, p := range l.Photos {
		if strings.TrimSpace(string(p)) == "" {
			return fmt.Errorf("%w: empty photo reference", ErrValidation)
		}
	}
	for _, m := range l.Marketplaces {
		if err := ValidateMarketplaceName(m); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMarketplaceName rejects names that cannot be used as status map keys.
func ValidateMarketplaceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty marketplace name", ErrValidation)
	}
	if strings.ContainsAny(name, ".$") {
		return fmt.Errorf("%w: marketplace name %q contains reserved characters", ErrValidation, name)
	}
	return nil
}

// StatusUpdate is a terminal write for one marketplace entry.
type StatusUpdate struct {
	Status     PostingStatus
	Attempt    int64
	Reason     string
	ExternalID string
}

// Draft is the client-held aggregate submitted to create a listing.
type Draft struct {
	Title          string
	Description    string
	Category       string
	Brand          string
	Tags           []string
	Price          float64
	Photos         []PhotoReference
	Marketplaces   []string
	IdempotencyKey string
}

// ListingUpdate carries editable fields. Nil means unchanged. Photos are not
// editable.
type ListingUpdate struct {
	Title        *string
	Description  *string
	Category     *string
	Brand        *string
	Tags         *[]string
	Price        *float64
	Marketplaces *[]string
}

// CandidateListing is a generated suggestion. It never touches a listing.
type CandidateListing struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type Stats struct {
	ListingCount  int64           `json:"listing_count"`
	TopCategories []CategoryCount `json:"top_categories"`
}

// Dedupe trims names and drops repeats, keeping first-occurrence order.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
