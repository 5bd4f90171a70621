package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (s *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m...)
	return nil
}

type fakeUsers map[string]string

func (u fakeUsers) GetEmailByID(ctx context.Context, userID string) (string, error) {
	if email, ok := u[userID]; ok {
		return email, nil
	}
	return "", errors.New("user not found")
}

func convergedListing() *domain.Listing {
	return &domain.Listing{
		ID:           "l1",
		UserID:       "u1",
		Title:        "Vintage camera",
		Marketplaces: []string{"eBay", "Etsy"},
		Status: map[string]domain.MarketplaceStatus{
			"eBay": {State: domain.StatusPosted, Attempt: 1, ExternalID: "123"},
			"Etsy": {State: domain.StatusFailed, Attempt: 1, Reason: "timeout"},
		},
	}
}

func TestDistributionConvergedSendsSummary(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailer(sender, "noreply@flashlist.dev", fakeUsers{"u1": "owner@example.com"}, logger.NewNop())

	require.NoError(t, m.DistributionConverged(context.Background(), convergedListing()))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"owner@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"noreply@flashlist.dev"}, msg.GetHeader("From"))
}

func TestDistributionConvergedUnknownOwner(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailer(sender, "noreply@flashlist.dev", fakeUsers{}, logger.NewNop())

	assert.Error(t, m.DistributionConverged(context.Background(), convergedListing()))
	assert.Empty(t, sender.sent)
}

func TestDistributionConvergedSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("535 auth failed")}
	m := NewMailer(sender, "noreply@flashlist.dev", fakeUsers{"u1": "owner@example.com"}, logger.NewNop())

	err := m.DistributionConverged(context.Background(), convergedListing())
	assert.ErrorContains(t, err, "535")
}

func TestSummaryListsEveryMarketplace(t *testing.T) {
	body := summary(convergedListing())
	assert.Contains(t, body, "eBay: posted (id 123)")
	assert.Contains(t, body, "Etsy: failed (timeout)")
	assert.Less(t, strings.Index(body, "Etsy"), strings.Index(body, "eBay"))
}

