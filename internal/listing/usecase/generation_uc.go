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

const (
	DefaultGenerationTimeout = 30 * time.Second
	maxSuggestedTags         = 5
)

// PhotoOpener reads a stored photo back.
type PhotoOpener interface {
	Open(ctx context.Context, ref domain.PhotoReference) ([]byte, string, error)
}

// GenerationUsecase asks the generator for listing suggestions. It never
// writes listings.
type GenerationUsecase struct {
	generator domain.Generator
	photos    PhotoOpener
	timeout   time.Duration
	logger    *logger.Logger
}

func NewGenerationUsecase(generator domain.Generator, photos PhotoOpener, timeout time.Duration, log *logger.Logger) *GenerationUsecase {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &GenerationUsecase{generator: generator, photos: photos, timeout: timeout, logger: log.Named("generation")}
}

func (uc *GenerationUsecase) Generate(ctx context.Context, ref domain.PhotoReference) (*domain.CandidateListing, error) {
	data, contentType, err := uc.photos.Open(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrPhotoNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrGenerationRejected, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	candidate, err := uc.generator.Describe(ctx, data, contentType)
	if err != nil {
		return nil, uc.classify(ctx, "describe", err)
	}
	if candidate == nil || strings.TrimSpace(candidate.Title) == "" {
		return nil, fmt.Errorf("%w: no candidate returned", domain.ErrGenerationRejected)
	}

	candidate.Title = strings.TrimSpace(candidate.Title)
	candidate.Description = strings.TrimSpace(candidate.Description)
	candidate.Category = strings.TrimSpace(candidate.Category)
	candidate.Tags = domain.Dedupe(candidate.Tags)
	if len(candidate.Tags) > maxSuggestedTags {
		candidate.Tags = candidate.Tags[:maxSuggestedTags]
	}
	return candidate, nil
}

// SuggestPrice estimates a resale price in USD.
func (uc *GenerationUsecase) SuggestPrice(ctx context.Context, title, description string) (float64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("%w: title is required for a price estimate", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	price, err := uc.generator.EstimatePrice(ctx, title, description)
	if err != nil {
		return 0, uc.classify(ctx, "estimate price", err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: no usable price estimate", domain.ErrGenerationUnavailable)
	}
	return price, nil
}

func (uc *GenerationUsecase) classify(ctx context.Context, op string, err error) error {
	uc.logger.Warn("Generation request failed", zap.String("op", op), zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrGenerationRejected), errors.Is(err, domain.ErrGenerationUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out", domain.ErrGenerationUnavailable)
	default:
		return fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
	}
}
