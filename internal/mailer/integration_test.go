package mailer

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
)

func TestDistributionConverged_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping SMTP integration test in short mode")
	}
	_ = godotenv.Load("../../.env")

	to := os.Getenv("TEST_RECEIVER_EMAIL")
	host := os.Getenv("SMTP_HOST")
	if to == "" || host == "" {
		t.Skip("TEST_RECEIVER_EMAIL or SMTP_HOST not set")
	}
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		port = 587
	}

	m := NewSMTPMailer(Config{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}, fakeUsers{"u1": to}, logger.NewNop())

	require.NoError(t, m.DistributionConverged(context.Background(), convergedListing()))
}
