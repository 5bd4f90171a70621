// Package rest is the HTTP transport of the listing service.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const idempotencyKeyHeader = "Idempotency-Key"

type ListingService interface {
	CreateListing(ctx context.Context, userID string, draft domain.Draft) (*domain.Listing, error)
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	ListMine(ctx context.Context, userID string) ([]*domain.Listing, error)
	UpdateListing(ctx context.Context, id, userID string, upd domain.ListingUpdate) (*domain.Listing, error)
	DeleteListing(ctx context.Context, id, userID string) error
	RetryMarketplace(ctx context.Context, id, userID, marketplace string) (*domain.Listing, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

type PhotoService interface {
	Store(ctx context.Context, data []byte, filename string) (domain.PhotoReference, error)
	Open(ctx context.Context, ref domain.PhotoReference) ([]byte, string, error)
}

type GenerationService interface {
	Generate(ctx context.Context, ref domain.PhotoReference) (*domain.CandidateListing, error)
	SuggestPrice(ctx context.Context, title, description string) (float64, error)
}

// MarketplaceCatalog lists the registered adapters.
type MarketplaceCatalog interface {
	Names() []string
}

type Handler struct {
	listings      ListingService
	photos        PhotoService
	generation    GenerationService
	marketplaces  MarketplaceCatalog
	maxPhotoBytes int64
	logger        *logger.Logger
}

func NewHandler(
	listings ListingService,
	photos PhotoService,
	generation GenerationService,
	marketplaces MarketplaceCatalog,
	maxPhotoBytes int64,
	log *logger.Logger,
) *Handler {
	return &Handler{
		listings:      listings,
		photos:        photos,
		generation:    generation,
		marketplaces:  marketplaces,
		maxPhotoBytes: maxPhotoBytes,
		logger:        log.Named("HTTPHandler"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadPhoto accepts a multipart "file" field or a raw image body.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	// one extra byte lets the usecase tell "at the limit" from "over it"
	limit := h.maxPhotoBytes + 1
	var (
		data     []byte
		filename string
		err      error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, r, h.logger, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrValidation))
			return
		}
		defer file.Close()
		filename = header.Filename
		data, err = io.ReadAll(io.LimitReader(file, limit))
	} else {
		data, err = io.ReadAll(io.LimitReader(r.Body, limit))
	}
	if err != nil {
		writeError(w, r, h.logger, fmt.Errorf("%w: cannot read photo: %v", domain.ErrValidation, err))
		return
	}

	ref, err := h.photos.Store(r.Context(), data, filename)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, photoResponse{Reference: ref})
}

func (h *Handler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	ref := domain.PhotoReference("photos/" + chi.URLParam(r, "*"))
	data, contentType, err := h.photos.Open(r.Context(), ref)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	// references are content hashes, so the bytes never change
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Reference == "" {
		writeError(w, r, h.logger, fmt.Errorf("%w: reference is required", domain.ErrValidation))
		return
	}
	candidate, err := h.generation.Generate(r.Context(), domain.PhotoReference(req.Reference))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, candidate)
}

func (h *Handler) SuggestPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}
	price, err := h.generation.SuggestPrice(r.Context(), req.Title, req.Description)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{PriceEstimate: price})
}

func (h *Handler) ListMarketplaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, marketplacesResponse{Marketplaces: nonNil(h.marketplaces.Names())})
}

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID, _ := UserIDFromContext(r.Context())

	l, err := h.listings.CreateListing(r.Context(), userID, req.toDraft(r.Header.Get(idempotencyKeyHeader)))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	listings, err := h.listings.ListMine(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toListingResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.listings.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *Handler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	var req updateListingRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID, _ := UserIDFromContext(r.Context())

	l, err := h.listings.UpdateListing(r.Context(), chi.URLParam(r, "id"), userID, req.toUpdate())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *Handler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if err := h.listings.DeleteListing(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RetryMarketplace(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	l, err := h.listings.RetryMarketplace(r.Context(), chi.URLParam(r, "id"), userID, chi.URLParam(r, "marketplace"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toListingResponse(l))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.listings.Stats(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debug("Invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, r, h.logger, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err))
		return false
	}
	return true
}
