package marketplace

import (
	"fmt"
	"math"
	"strings"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
)

const (
	EBay                = "eBay"
	Etsy                = "Etsy"
	Mercari             = "Mercari"
	OfferUp             = "OfferUp"
	FacebookMarketplace = "Facebook Marketplace"
)

type variant struct {
	path        string
	tokenHeader string
	idFields    []string
	build       PayloadBuilder
}

var variants = map[string]variant{
	EBay: {
		path:     "/sell/inventory/v1/offer",
		idFields: []string{"offerId", "listingId", "id"},
		build:    ebayPayload,
	},
	Etsy: {
		path:        "/v3/application/listings",
		tokenHeader: "x-api-key",
		idFields:    []string{"listing_id", "id"},
		build:       etsyPayload,
	},
	Mercari: {
		path:     "/v1/items",
		idFields: []string{"item_id", "id"},
		build:    mercariPayload,
	},
	OfferUp: {
		path:     "/api/listings",
		idFields: []string{"listingId", "id"},
		build:    offerUpPayload,
	},
	FacebookMarketplace: {
		path:     "/commerce/listings",
		idFields: []string{"id"},
		build:    facebookPayload,
	},
}

// BuiltinNames lists the marketplaces with a known payload format.
func BuiltinNames() []string {
	return []string{EBay, Etsy, Mercari, OfferUp, FacebookMarketplace}
}

// NewBuiltin builds the REST adapter for one of the known marketplaces.
func NewBuiltin(name, endpoint, token string, retryCount int, photoURL PhotoURLFunc) (*RESTAdapter, error) {
	v, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("no built-in adapter for marketplace %q", name)
	}
	return NewRESTAdapter(RESTConfig{
		Name:        name,
		Endpoint:    endpoint,
		Path:        v.path,
		Token:       token,
		RetryCount:  retryCount,
		TokenHeader: v.tokenHeader,
		IDFields:    v.idFields,
		Build:       v.build,
		PhotoURL:    photoURL,
	})
}

func photoURLs(l *domain.Listing, photoURL PhotoURLFunc) []string {
	urls := make([]string, 0, len(l.Photos))
	for _, p := range l.Photos {
		urls = append(urls, photoURL(p))
	}
	return urls
}

func cents(price float64) int64 {
	return int64(math.Round(price * 100))
}

func ebayPayload(l *domain.Listing, photoURL PhotoURLFunc) interface{} {
	aspects := map[string][]string{}
	if l.Brand != "" {
		aspects["Brand"] = []string{l.Brand}
	}
	return map[string]interface{}{
		"sku":    l.ID,
		"format": "FIXED_PRICE",
		"product": map[string]interface{}{
			"title":       l.Title,
			"description": l.Description,
			"aspects":     aspects,
			"imageUrls":   photoURLs(l, photoURL),
		},
		"categoryName": l.Category,
		"pricingSummary": map[string]interface{}{
			"price": map[string]string{
				"value":    fmt.Sprintf("%.2f", l.Price),
				"currency": "USD",
			},
		},
		"availableQuantity": 1,
	}
}

func etsyPayload(l *domain.Listing, photoURL PhotoURLFunc) interface{} {
	tags := l.Tags
	// Etsy accepts at most 13 tags.
	if len(tags) > 13 {
		tags = tags[:13]
	}
	return map[string]interface{}{
		"quantity":     1,
		"title":        l.Title,
		"description":  l.Description,
		"price":        l.Price,
		"who_made":     "someone_else",
		"when_made":    "2020_2025",
		"tags":         tags,
		"image_urls":   photoURLs(l, photoURL),
		"is_supply":    false,
		"state":        "draft",
		"category_tag": l.Category,
	}
}

func mercariPayload(l *domain.Listing, photoURL PhotoURLFunc) interface{} {
	return map[string]interface{}{
		"name":        l.Title,
		"description": l.Description,
		"price":       cents(l.Price),
		"brand":       l.Brand,
		"category":    l.Category,
		"photos":      photoURLs(l, photoURL),
		"condition":   "used",
	}
}

func offerUpPayload(l *domain.Listing, photoURL PhotoURLFunc) interface{} {
	return map[string]interface{}{
		"title":       l.Title,
		"description": l.Description,
		"price":       fmt.Sprintf("%.2f", l.Price),
		"category":    l.Category,
		"images":      photoURLs(l, photoURL),
		"keywords":    strings.Join(l.Tags, ","),
	}
}

func facebookPayload(l *domain.Listing, photoURL PhotoURLFunc) interface{} {
	return map[string]interface{}{
		"name":         l.Title,
		"description":  l.Description,
		"price":        cents(l.Price),
		"currency":     "USD",
		"category":     l.Category,
		"brand":        l.Brand,
		"image_urls":   photoURLs(l, photoURL),
		"availability": "in stock",
		"retailer_id":  l.ID,
	}
}
