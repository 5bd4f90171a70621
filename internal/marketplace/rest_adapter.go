package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/go-resty/resty/v2"
)

// PhotoURLFunc turns a stored photo reference into a URL a marketplace can fetch.
type PhotoURLFunc func(ref domain.PhotoReference) string

// PayloadBuilder renders a listing as the body of a marketplace create call.
type PayloadBuilder func(l *domain.Listing, photoURL PhotoURLFunc) interface{}

type RESTConfig struct {
	Name       string
	Endpoint   string
	Path       string
	Token      string
	RetryCount int
	// TokenHeader puts the token in a header of its own instead of a bearer
	// Authorization header.
	TokenHeader string
	IDFields    []string
	Build       PayloadBuilder
	PhotoURL    PhotoURLFunc
}

// RESTAdapter posts listings over a JSON HTTP API.
type RESTAdapter struct {
	name     string
	path     string
	idFields []string
	build    PayloadBuilder
	photoURL PhotoURLFunc
	client   *resty.Client
}

func NewRESTAdapter(cfg RESTConfig) (*RESTAdapter, error) {
	if cfg.Name == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("marketplace adapter requires a name and an endpoint")
	}
	if cfg.Build == nil {
		return nil, fmt.Errorf("marketplace adapter %s has no payload builder", cfg.Name)
	}
	if cfg.PhotoURL == nil {
		cfg.PhotoURL = func(ref domain.PhotoReference) string { return string(ref) }
	}
	if len(cfg.IDFields) == 0 {
		cfg.IDFields = []string{"id"}
	}

	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "flashlist-service/1.0").
		SetRetryCount(cfg.RetryCount).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	if cfg.Token != "" {
		if cfg.TokenHeader != "" {
			client.SetHeader(cfg.TokenHeader, cfg.Token)
		} else {
			client.SetAuthToken(cfg.Token)
		}
	}

	return &RESTAdapter{
		name:     cfg.Name,
		path:     cfg.Path,
		idFields: cfg.IDFields,
		build:    cfg.Build,
		photoURL: cfg.PhotoURL,
		client:   client,
	}, nil
}

func (a *RESTAdapter) Name() string { return a.name }

func (a *RESTAdapter) Post(ctx context.Context, listing *domain.Listing) (*Receipt, error) {
	var body map[string]interface{}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(a.build(listing, a.photoURL)).
		SetResult(&body).
		Post(a.path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &PostError{Marketplace: a.name, Reason: domain.ReasonTimeout, Err: err}
		}
		return nil, &PostError{Marketplace: a.name, Reason: ReasonTransportError, Err: err}
	}

	code := resp.StatusCode()
	switch {
	case resp.IsSuccess():
		return &Receipt{ExternalID: a.externalID(body)}, nil
	case code == http.StatusTooManyRequests:
		return nil, &PostError{Marketplace: a.name, Reason: ReasonRateLimited}
	case code >= 400 && code < 500:
		return nil, &PostError{Marketplace: a.name, Reason: "rejected_" + strconv.Itoa(code), Err: errors.New(resp.String())}
	case code >= 500:
		return nil, &PostError{Marketplace: a.name, Reason: "upstream_" + strconv.Itoa(code)}
	default:
		return nil, &PostError{Marketplace: a.name, Reason: "unexpected_" + strconv.Itoa(code)}
	}
}

func (a *RESTAdapter) externalID(body map[string]interface{}) string {
	for _, field := range a.idFields {
		v, ok := body[field]
		if !ok || v == nil {
			continue
		}
		switch id := v.(type) {
		case string:
			return id
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		default:
			return fmt.Sprint(id)
		}
	}
	return ""
}
