// Package gemini implements listing generation on Google Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultModel = "gemini-2.5-flash"

const describePrompt = `
You write resale marketplace listings from a single product photo.

Requirements:
1. title: concise and searchable, max 80 characters, include brand and model when visible.
2. description: 2-4 sentences covering condition, notable features and what is included.
3. category: one broad category such as Electronics, Clothing, Home, Sports, Toys, Books.
4. tags: exactly 5 short lowercase keywords.

Output Schema (JSON):
{
    "title": "string",
    "description": "string",
    "category": "string",
    "tags": ["string"]
}
`

const pricePrompt = `
Estimate a fair used resale price in USD for this item.
Title: %s
Description: %s

Output Schema (JSON):
{
    "price_estimate": number
}
`

type Client struct {
	client *genai.Client
	model  string
	logger *logger.Logger
}

func NewClient(ctx context.Context, apiKey, model string, log *logger.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}
	return &Client{client: client, model: model, logger: log.Named("gemini")}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) jsonModel() *genai.GenerativeModel {
	m := c.client.GenerativeModel(c.model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.4)
	return m
}

func (c *Client) Describe(ctx context.Context, image []byte, contentType string) (*domain.CandidateListing, error) {
	format := strings.TrimPrefix(contentType, "image/")
	resp, err := c.jsonModel().GenerateContent(ctx, genai.ImageData(format, image), genai.Text(describePrompt))
	if err != nil {
		return nil, classify(err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	var candidate domain.CandidateListing
	if err := decodeJSON(raw, &candidate); err != nil {
		c.logger.Warn("Unparseable description output", zap.String("raw", raw), zap.Error(err))
		return nil, fmt.Errorf("%w: unparseable model output", domain.ErrGenerationUnavailable)
	}
	return &candidate, nil
}

func (c *Client) EstimatePrice(ctx context.Context, title, description string) (float64, error) {
	resp, err := c.jsonModel().GenerateContent(ctx, genai.Text(fmt.Sprintf(pricePrompt, title, description)))
	if err != nil {
		return 0, classify(err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return 0, err
	}
	price, err := parsePrice(raw)
	if err != nil {
		c.logger.Warn("Unparseable price output", zap.String("raw", raw), zap.Error(err))
		return 0, fmt.Errorf("%w: unparseable model output", domain.ErrGenerationUnavailable)
	}
	return price, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty response", domain.ErrGenerationRejected)
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return string(txt), nil
		}
	}
	return "", fmt.Errorf("%w: response has no text part", domain.ErrGenerationRejected)
}

// decodeJSON tolerates a markdown code fence around the payload.
func decodeJSON(raw string, v interface{}) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return json.Unmarshal([]byte(strings.TrimSpace(raw)), v)
}

func parsePrice(raw string) (float64, error) {
	var out struct {
		PriceEstimate json.Number `json:"price_estimate"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		// some models answer with a bare number
		trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "$")
		if f, perr := strconv.ParseFloat(trimmed, 64); perr == nil {
			return f, nil
		}
		return 0, err
	}
	return out.PriceEstimate.Float64()
}

// classify maps client errors onto the generation error taxonomy. Deadline
// errors are returned unchanged for the caller to report as a timeout.
func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", domain.ErrGenerationRejected, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusBadRequest {
			return fmt.Errorf("%w: %v", domain.ErrGenerationRejected, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
	}
	switch status.Code(err) {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %v", domain.ErrGenerationRejected, err)
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
}
