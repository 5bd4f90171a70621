package usecase

import (
	"context"
	"testing"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/repository/memory"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/marketplace"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type listingFixture struct {
	repo *memory.ListingRepository
	dist *Distributor
	uc   *ListingUsecase
	pub  *mockPublisher
}

func newListingFixture(t *testing.T, adapters ...marketplace.Adapter) *listingFixture {
	t.Helper()
	registry, err := marketplace.NewRegistry(adapters...)
	require.NoError(t, err)
	repo := memory.NewListingRepository()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dist := NewDistributor(repo, registry, pub, nil, nil, DistributorConfig{}, logger.NewNop())
	return &listingFixture{
		repo: repo,
		dist: dist,
		pub:  pub,
		uc:   NewListingUsecase(repo, dist, pub, nil, DefaultMaxMarketplaces, logger.NewNop()),
	}
}

func (f *listingFixture) wait(t *testing.T) {
	t.Helper()
	(&distributorFixture{dist: f.dist}).wait(t)
}

func draft(markets ...string) domain.Draft {
	return domain.Draft{
		Title:        " Film camera ",
		Description:  "Works",
		Category:     "Electronics",
		Tags:         []string{"camera", "film", "camera"},
		Price:        75,
		Photos:       []domain.PhotoReference{"photos/a.jpg", "photos/b.jpg"},
		Marketplaces: markets,
	}
}

func TestCreateListingDistributes(t *testing.T) {
	f := newListingFixture(t, postedAs("eBay", "E-1"), failingWith("Etsy", marketplace.ReasonRateLimited))
	ctx := context.Background()

	l, err := f.uc.CreateListing(ctx, "user-1", draft("eBay", "Etsy", "eBay"))
	require.NoError(t, err)
	assert.Equal(t, "Film camera", l.Title)
	assert.Equal(t, []string{"camera", "film"}, l.Tags)
	assert.ElementsMatch(t, []string{"eBay", "Etsy"}, keys(l.Status), "entries exist as soon as create returns")

	f.wait(t)
	got, err := f.uc.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.PostingStatus{"eBay": domain.StatusPosted, "Etsy": domain.StatusFailed}, got.StatusMap())
	f.pub.AssertCalled(t, "Publish", mock.Anything, SubjectListingCreated, mock.Anything)
}

func TestCreateListingValidation(t *testing.T) {
	f := newListingFixture(t)
	ctx := context.Background()

	noPrice := draft()
	noPrice.Price = -1
	_, err := f.uc.CreateListing(ctx, "user-1", noPrice)
	assert.ErrorIs(t, err, domain.ErrValidation)

	noPhotos := draft()
	noPhotos.Photos = nil
	_, err = f.uc.CreateListing(ctx, "user-1", noPhotos)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.uc.CreateListing(ctx, "user-1", draft("a", "b", "c", "d", "e", "f"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateListingEmptySelection(t *testing.T) {
	f := newListingFixture(t)
	l, err := f.uc.CreateListing(context.Background(), "user-1", draft())
	require.NoError(t, err)
	assert.Empty(t, l.StatusMap())
	assert.Equal(t, domain.LifecycleDistributed, domain.LifecycleOf(l))
}

func TestCreateListingIdempotencyKey(t *testing.T) {
	var calls int
	counting := &fakeAdapter{name: "eBay", post: func(context.Context, *domain.Listing) (*marketplace.Receipt, error) {
		calls++
		return &marketplace.Receipt{}, nil
	}}
	f := newListingFixture(t, counting)
	ctx := context.Background()

	d := draft("eBay")
	d.IdempotencyKey = "tap-1"
	first, err := f.uc.CreateListing(ctx, "user-1", d)
	require.NoError(t, err)
	f.wait(t)

	second, err := f.uc.CreateListing(ctx, "user-1", d)
	require.NoError(t, err)
	f.wait(t)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, calls)
	mine, err := f.uc.ListMine(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestUpdateListingAddsAndRemovesMarketplaces(t *testing.T) {
	f := newListingFixture(t, postedAs("eBay", "E-1"), postedAs("Etsy", "T-1"), postedAs("Mercari", "M-1"))
	ctx := context.Background()

	l, err := f.uc.CreateListing(ctx, "user-1", draft("eBay", "Etsy"))
	require.NoError(t, err)
	f.wait(t)

	title := "Rangefinder camera"
	markets := []string{"eBay", "Mercari"}
	updated, err := f.uc.UpdateListing(ctx, l.ID, "user-1", domain.ListingUpdate{Title: &title, Marketplaces: &markets})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	f.wait(t)

	got, err := f.uc.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.PostingStatus{"eBay": domain.StatusPosted, "Mercari": domain.StatusPosted}, got.StatusMap())
	assert.Equal(t, int64(1), got.Status["eBay"].Attempt, "kept marketplaces are not re-posted")
	assert.Equal(t, []domain.PhotoReference{"photos/a.jpg", "photos/b.jpg"}, got.Photos)
}

func TestUpdateListingRejectsRemovingInFlightMarketplace(t *testing.T) {
	release := make(chan struct{})
	f := newListingFixture(t, blockingAdapter("eBay", release))
	ctx := context.Background()

	l, err := f.uc.CreateListing(ctx, "user-1", draft("eBay"))
	require.NoError(t, err)

	none := []string{}
	_, err = f.uc.UpdateListing(ctx, l.ID, "user-1", domain.ListingUpdate{Marketplaces: &none})
	assert.ErrorIs(t, err, domain.ErrConflict)

	close(release)
	f.wait(t)
}

func TestOwnerScoping(t *testing.T) {
	f := newListingFixture(t, failingWith("eBay", "rejected_400"))
	ctx := context.Background()

	l, err := f.uc.CreateListing(ctx, "owner", draft("eBay"))
	require.NoError(t, err)
	f.wait(t)

	title := "Stolen"
	_, err = f.uc.UpdateListing(ctx, l.ID, "intruder", domain.ListingUpdate{Title: &title})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, f.uc.DeleteListing(ctx, l.ID, "intruder"), domain.ErrForbidden)
	_, err = f.uc.RetryMarketplace(ctx, l.ID, "intruder", "eBay")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.uc.RetryMarketplace(ctx, l.ID, "owner", "eBay")
	require.NoError(t, err)
	f.wait(t)

	require.NoError(t, f.uc.DeleteListing(ctx, l.ID, "owner"))
	_, err = f.uc.GetListing(ctx, l.ID)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
	assert.ErrorIs(t, f.uc.DeleteListing(ctx, l.ID, "owner"), domain.ErrListingNotFound)
	f.pub.AssertCalled(t, "Publish", mock.Anything, SubjectListingDeleted, mock.Anything)
}

func keys(m map[string]domain.MarketplaceStatus) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
