package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func statusFor(err error) int {
	var storageErr *domain.StorageError
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidMarketplace):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrListingNotFound), errors.Is(err, domain.ErrPhotoNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPhotoTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &storageErr):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrGenerationRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError maps a usecase error onto a status code. Internal details are
// only exposed for client errors.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		log.Error("Request failed",
			zap.String("path", r.URL.Path), zap.String("request_id", RequestIDFromContext(r.Context())), zap.Error(err))
		if code == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	writeJSON(w, code, errorResponse{Error: msg, RequestID: RequestIDFromContext(r.Context())})
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
