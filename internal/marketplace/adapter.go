// Package marketplace holds the adapters that post listings to external
// marketplaces and the registry the distributor looks them up in.
package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
)

// Receipt is returned by a successful post.
type Receipt struct {
	ExternalID string
}

// Adapter posts one listing to one marketplace. Post must honor ctx
// cancellation; the caller bounds it with a timeout.
type Adapter interface {
	Name() string
	Post(ctx context.Context, listing *domain.Listing) (*Receipt, error)
}

// Failure reasons produced by the REST adapters.
const (
	ReasonRateLimited    = "rate_limited"
	ReasonTransportError = "transport_error"
	ReasonAdapterError   = "adapter_error"
)

// PostError is a failed post with the reason recorded on the status entry.
type PostError struct {
	Marketplace string
	Reason      string
	Err         error
}

func (e *PostError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: post failed: %s", e.Marketplace, e.Reason)
	}
	return fmt.Sprintf("%s: post failed: %s: %v", e.Marketplace, e.Reason, e.Err)
}

func (e *PostError) Unwrap() error { return e.Err }

// FailureReason maps an adapter error to the reason stored on a failed entry.
func FailureReason(err error) string {
	var pe *PostError
	if errors.As(err, &pe) && pe.Reason != "" {
		return pe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonTimeout
	}
	return ReasonAdapterError
}
