package domain

import (
	"errors"
	"fmt"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	// ErrValidation marks bad input. It is never retried.
	ErrValidation         = errors.New("invalid listing data")
	ErrForbidden          = errors.New("user not authorized to perform this action")
	ErrConflict           = errors.New("listing was modified or deleted concurrently")
	ErrInvalidMarketplace = errors.New("marketplace is not selected for this listing")
	ErrStaleUpdate        = errors.New("status update belongs to an outdated attempt")
	ErrInvalidTransition  = errors.New("invalid posting status transition")
	ErrNotRetryable       = errors.New("only failed marketplace postings can be retried")

	ErrUnsupportedContentType = errors.New("unsupported photo content type")
	ErrPhotoTooLarge          = errors.New("photo exceeds maximum size")
	ErrPhotoNotFound          = errors.New("photo not found")

	ErrGenerationUnavailable = errors.New("generation service unavailable")
	ErrGenerationRejected    = errors.New("photo rejected by generation service")
)

// DuplicateListingError is returned by Create when the owner already created a
// listing with the same idempotency key.
type DuplicateListingError struct {
	ExistingID string
}

func (e *DuplicateListingError) Error() string {
	return fmt.Sprintf("listing already created with this idempotency key: %s", e.ExistingID)
}

// StorageError wraps photo store I/O failures and disallowed content.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("photo storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
