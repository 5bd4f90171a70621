package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.uber.org/zap"
)

const (
	DefaultMaxPhotoBytes = 10 << 20
	photoPrefix          = "photos/"
)

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type PhotoUsecase struct {
	storage  domain.PhotoStorage
	maxBytes int64
	logger   *logger.Logger
}

func NewPhotoUsecase(storage domain.PhotoStorage, maxBytes int64, log *logger.Logger) *PhotoUsecase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPhotoBytes
	}
	return &PhotoUsecase{storage: storage, maxBytes: maxBytes, logger: log.Named("photos")}
}

// Store persists the image and returns its reference. References are derived
// from the content, so storing the same bytes twice yields the same reference.
func (uc *PhotoUsecase) Store(ctx context.Context, data []byte, filename string) (domain.PhotoReference, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty photo", domain.ErrValidation)
	}
	if int64(len(data)) > uc.maxBytes {
		return "", &domain.StorageError{Op: "store", Err: fmt.Errorf("%w: %d bytes, limit %d", domain.ErrPhotoTooLarge, len(data), uc.maxBytes)}
	}

	contentType := http.DetectContentType(data)
	ext, ok := photoExtensions[contentType]
	if !ok {
		uc.logger.Info("Rejected photo upload", zap.String("filename", filename), zap.String("content_type", contentType))
		return "", &domain.StorageError{Op: "store", Err: fmt.Errorf("%w: %s", domain.ErrUnsupportedContentType, contentType)}
	}

	sum := sha256.Sum256(data)
	key := photoPrefix + hex.EncodeToString(sum[:]) + ext

	exists, err := uc.storage.Exists(ctx, key)
	if err != nil {
		return "", &domain.StorageError{Op: "stat", Err: err}
	}
	if !exists {
		if err := uc.storage.Put(ctx, key, data, contentType); err != nil {
			uc.logger.Error("Failed to store photo", zap.String("key", key), zap.Error(err))
			return "", &domain.StorageError{Op: "put", Err: err}
		}
	}

	uc.logger.Debug("Stored photo",
		zap.String("key", key), zap.Int("size_bytes", len(data)), zap.Bool("deduplicated", exists))
	return domain.PhotoReference(key), nil
}

// Open returns the stored bytes and their content type.
func (uc *PhotoUsecase) Open(ctx context.Context, ref domain.PhotoReference) ([]byte, string, error) {
	key := string(ref)
	if !strings.HasPrefix(key, photoPrefix) || strings.Contains(key, "..") || len(key) == len(photoPrefix) {
		return nil, "", domain.ErrPhotoNotFound
	}
	data, contentType, err := uc.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrPhotoNotFound) {
			return nil, "", err
		}
		return nil, "", &domain.StorageError{Op: "get", Err: err}
	}
	return data, contentType, nil
}
