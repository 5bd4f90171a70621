// Package mailer notifies listing owners by e-mail.
package mailer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailLookup resolves a user id to an address.
type EmailLookup interface {
	GetEmailByID(ctx context.Context, userID string) (string, error)
}

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	sender Sender
	from   string
	users  EmailLookup
	logger *logger.Logger
}

func NewSMTPMailer(cfg Config, users EmailLookup, log *logger.Logger) *SMTPMailer {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return NewMailer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), from, users, log)
}

func NewMailer(sender Sender, from string, users EmailLookup, log *logger.Logger) *SMTPMailer {
	return &SMTPMailer{
		sender: sender,
		from:   from,
		users:  users,
		logger: log.Named("Mailer"),
	}
}

// DistributionConverged sends the owner a summary of where the listing ended up.
func (m *SMTPMailer) DistributionConverged(ctx context.Context, l *domain.Listing) error {
	to, err := m.users.GetEmailByID(ctx, l.UserID)
	if err != nil {
		m.logger.Warn("No recipient for distribution summary",
			zap.String("listing_id", l.ID), zap.String("user_id", l.UserID), zap.Error(err))
		return fmt.Errorf("resolve recipient: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Your listing %q has been distributed", l.Title))
	msg.SetBody("text/plain", summary(l))

	if err := m.sender.DialAndSend(msg); err != nil {
		m.logger.Error("Failed to send distribution summary", zap.String("listing_id", l.ID), zap.Error(err))
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Info("Distribution summary sent", zap.String("listing_id", l.ID))
	return nil
}

func summary(l *domain.Listing) string {
	names := make([]string, 0, len(l.Status))
	for name := range l.Status {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Distribution of %q finished.\n\n", l.Title)
	for _, name := range names {
		st := l.Status[name]
		switch {
		case st.State == domain.StatusPosted && st.ExternalID != "":
			fmt.Fprintf(&b, "%s: posted (id %s)\n", name, st.ExternalID)
		case st.State == domain.StatusFailed:
			fmt.Fprintf(&b, "%s: failed (%s)\n", name, st.Reason)
		default:
			fmt.Fprintf(&b, "%s: %s\n", name, st.State)
		}
	}
	b.WriteString("\nFailed postings can be retried from your listing page.\n")
	return b.String()
}
