package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/repository/memory"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/usecase"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/marketplace"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)

type toggleAdapter struct {
	name string
	fail atomic.Bool
}

func (a *toggleAdapter) Name() string { return a.name }

func (a *toggleAdapter) Post(ctx context.Context, l *domain.Listing) (*marketplace.Receipt, error) {
	if a.fail.Load() {
		return nil, &marketplace.PostError{Marketplace: a.name, Reason: marketplace.ReasonRateLimited}
	}
	return &marketplace.Receipt{ExternalID: a.name + "-" + l.ID}, nil
}

type stubGeneration struct {
	candidate *domain.CandidateListing
	price     float64
	err       error
}

func (g *stubGeneration) Generate(ctx context.Context, ref domain.PhotoReference) (*domain.CandidateListing, error) {
	return g.candidate, g.err
}

func (g *stubGeneration) SuggestPrice(ctx context.Context, title, description string) (float64, error) {
	return g.price, g.err
}

type apiFixture struct {
	server      *httptest.Server
	distributor *usecase.Distributor
	ebay        *toggleAdapter
	generation  *stubGeneration
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logger.NewNop()
	repo := memory.NewListingRepository()

	ebay := &toggleAdapter{name: "eBay"}
	registry, err := marketplace.NewRegistry(ebay, &toggleAdapter{name: "Etsy"})
	require.NoError(t, err)

	distributor := usecase.NewDistributor(repo, registry, nil, nil, nil,
		usecase.DistributorConfig{AdapterTimeout: time.Second}, log)
	listings := usecase.NewListingUsecase(repo, distributor, nil, nil, usecase.DefaultMaxMarketplaces, log)
	photos := usecase.NewPhotoUsecase(memory.NewPhotoStorage(), 1024, log)
	generation := &stubGeneration{}

	h := NewHandler(listings, photos, generation, registry, 1024, log)
	srv := httptest.NewServer(NewRouter(h, RouterConfig{JWTSecret: testSecret}, log))
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, distributor: distributor, ebay: ebay, generation: generation}
}

func (f *apiFixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.distributor.Shutdown(ctx))
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body interface{}, headers ...string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		role := ""
		if user == "admin" {
			role = RoleAdmin
		}
		req.Header.Set("Authorization", "Bearer "+token(t, user, role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func validListing(marketplaces ...string) listingRequest {
	return listingRequest{
		Title:        "Road bike",
		Description:  "Aluminium frame",
		Category:     "Sports",
		Price:        250,
		Photos:       []string{"photos/abc.jpg"},
		Marketplaces: marketplaces,
	}
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestAPIRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/listings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/listings", "", nil, "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	resp = f.do(t, http.MethodGet, "/api/listings", "", nil, "Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateListingDistributes(t *testing.T) {
	f := newAPIFixture(t)
	f.ebay.fail.Store(true)

	resp := f.do(t, http.MethodPost, "/api/listings", "u1", validListing("eBay", "Etsy"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created listingResponse
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)
	assert.ElementsMatch(t, []string{"eBay", "Etsy"}, keys(created.MarketplaceStatus))

	f.settle(t)

	resp = f.do(t, http.MethodGet, "/api/listings/"+created.ID, "u2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got listingResponse
	decodeBody(t, resp, &got)
	assert.Equal(t, domain.LifecycleDistributed, got.State)
	assert.Equal(t, domain.StatusFailed, got.MarketplaceStatus["eBay"])
	assert.Equal(t, domain.StatusPosted, got.MarketplaceStatus["Etsy"])
	assert.Equal(t, marketplace.ReasonRateLimited, got.MarketplaceDetails["eBay"].Reason)
	assert.Equal(t, "Etsy-"+created.ID, got.MarketplaceDetails["Etsy"].ExternalID)
}

func TestCreateListingWithoutMarketplaces(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/listings", "u1", validListing())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created listingResponse
	decodeBody(t, resp, &created)
	assert.Empty(t, created.MarketplaceStatus)
	assert.NotNil(t, created.MarketplaceStatus)
	assert.Equal(t, domain.LifecycleDistributed, created.State)
}

func TestCreateListingValidation(t *testing.T) {
	f := newAPIFixture(t)

	bad := validListing("eBay")
	bad.Price = 0
	resp := f.do(t, http.MethodPost, "/api/listings", "u1", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/listings", "u1", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateListingIdempotencyKey(t *testing.T) {
	f := newAPIFixture(t)

	first := f.do(t, http.MethodPost, "/api/listings", "u1", validListing("eBay"), idempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusCreated, first.StatusCode)
	var a listingResponse
	decodeBody(t, first, &a)

	second := f.do(t, http.MethodPost, "/api/listings", "u1", validListing("eBay"), idempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusCreated, second.StatusCode)
	var b listingResponse
	decodeBody(t, second, &b)
	assert.Equal(t, a.ID, b.ID)

	f.settle(t)
	resp := f.do(t, http.MethodGet, "/api/listings", "u1", nil)
	var mine []listingResponse
	decodeBody(t, resp, &mine)
	assert.Len(t, mine, 1)
}

func TestOwnerScoping(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/listings", "u1", validListing())
	var created listingResponse
	decodeBody(t, resp, &created)

	title := "Stolen"
	resp = f.do(t, http.MethodPut, "/api/listings/"+created.ID, "intruder", updateListingRequest{Title: &title})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/listings/"+created.ID, "intruder", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	title = "Road bike, 54cm"
	resp = f.do(t, http.MethodPut, "/api/listings/"+created.ID, "u1", updateListingRequest{Title: &title})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated listingResponse
	decodeBody(t, resp, &updated)
	assert.Equal(t, title, updated.Title)
}

func TestDeleteListing(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/listings", "u1", validListing("eBay"))
	var created listingResponse
	decodeBody(t, resp, &created)
	f.settle(t)

	resp = f.do(t, http.MethodDelete, "/api/listings/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/listings/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRetryMarketplace(t *testing.T) {
	f := newAPIFixture(t)
	f.ebay.fail.Store(true)

	resp := f.do(t, http.MethodPost, "/api/listings", "u1", validListing("eBay", "Etsy"))
	var created listingResponse
	decodeBody(t, resp, &created)
	f.settle(t)

	resp = f.do(t, http.MethodPost, "/api/listings/"+created.ID+"/marketplaces/Etsy/retry", "u1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/listings/"+created.ID+"/marketplaces/Mercari/retry", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.ebay.fail.Store(false)
	resp = f.do(t, http.MethodPost, "/api/listings/"+created.ID+"/marketplaces/eBay/retry", "u1", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	f.settle(t)

	resp = f.do(t, http.MethodGet, "/api/listings/"+created.ID, "u1", nil)
	var got listingResponse
	decodeBody(t, resp, &got)
	assert.Equal(t, domain.StatusPosted, got.MarketplaceStatus["eBay"])
	assert.Equal(t, int64(2), got.MarketplaceDetails["eBay"].Attempt)
	assert.Equal(t, int64(1), got.MarketplaceDetails["Etsy"].Attempt)
}

func TestAdminStats(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/listings", "u1", validListing())

	resp := f.do(t, http.MethodGet, "/api/admin/stats", "u1", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/admin/stats", "admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats domain.Stats
	decodeBody(t, resp, &stats)
	assert.Equal(t, int64(1), stats.ListingCount)
}

func TestListMarketplaces(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, http.MethodGet, "/api/marketplaces", "u1", nil)
	var out marketplacesResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, []string{"Etsy", "eBay"}, out.Marketplaces)
}

func TestPhotoUploadAndPublicDownload(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/photos", "u1", pngBytes, "Content-Type", "image/png")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var photo photoResponse
	decodeBody(t, resp, &photo)
	require.True(t, strings.HasPrefix(string(photo.Reference), "photos/"))

	resp = f.do(t, http.MethodGet, "/api/"+string(photo.Reference), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp = f.do(t, http.MethodGet, "/api/photos/missing.png", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPhotoUploadMultipart(t *testing.T) {
	f := newAPIFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "bike.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := f.do(t, http.MethodPost, "/api/photos", "u1", body.Bytes(), "Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestPhotoUploadRejections(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/photos", "u1", []byte("plain text, not an image"))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/photos", "u1", bytes.Repeat(pngBytes, 100))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestGenerationErrors(t *testing.T) {
	f := newAPIFixture(t)

	f.generation.candidate = &domain.CandidateListing{Title: "Road bike", Tags: []string{"bike"}}
	resp := f.do(t, http.MethodPost, "/api/generate", "u1", generateRequest{Reference: "photos/a.jpg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var candidate domain.CandidateListing
	decodeBody(t, resp, &candidate)
	assert.Equal(t, "Road bike", candidate.Title)

	f.generation.err = domain.ErrGenerationRejected
	resp = f.do(t, http.MethodPost, "/api/generate", "u1", generateRequest{Reference: "photos/a.jpg"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	f.generation.err = domain.ErrGenerationUnavailable
	resp = f.do(t, http.MethodPost, "/api/price", "u1", priceRequest{Title: "Road bike"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/generate", "u1", generateRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrInvalidMarketplace, http.StatusBadRequest},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrListingNotFound, http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrNotRetryable, http.StatusConflict},
		{&domain.StorageError{Op: "put", Err: domain.ErrUnsupportedContentType}, http.StatusUnsupportedMediaType},
		{&domain.StorageError{Op: "put", Err: assert.AnError}, http.StatusBadGateway},
		{domain.ErrGenerationRejected, http.StatusUnprocessableEntity},
		{domain.ErrGenerationUnavailable, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func keys(m map[string]domain.PostingStatus) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
