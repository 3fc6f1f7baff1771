package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/models"
	"github.com/prospecthq/prospect-engine/pkg/pipeline"
)

// maxFeedPages is a safety cap on pagination, in case a feed misreports its
// page count.
const maxFeedPages = 50

// ListingFeedAdapter fetches a paginated JSON listing feed from a commercial
// portal.
type ListingFeedAdapter struct {
	name    string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewListingFeedAdapter creates a feed adapter for one portal endpoint.
func NewListingFeedAdapter(name, baseURL string, logger *zap.Logger) *ListingFeedAdapter {
	return &ListingFeedAdapter{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.Named("feed-" + name),
	}
}

var _ Adapter = (*ListingFeedAdapter)(nil)

func (a *ListingFeedAdapter) Name() string { return a.name }

func (a *ListingFeedAdapter) SourceType() models.SourceType { return models.SourceCommercial }

// feedItem is the raw provider shape. Fields the provider omits stay nil and
// never overwrite canonical data downstream.
type feedItem struct {
	UPRN         string   `json:"uprn"`
	Address      string   `json:"address"`
	Postcode     string   `json:"postcode"`
	City         string   `json:"city"`
	ListingType  string   `json:"listing_type"`
	Price        *float64 `json:"price"`
	Bedrooms     *int     `json:"bedrooms"`
	Bathrooms    *int     `json:"bathrooms"`
	PropertyType string   `json:"property_type"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

type feedPage struct {
	Listings   []json.RawMessage `json:"listings"`
	TotalPages int               `json:"total_pages"`
}

// Fetch walks the feed's pages for the criteria, normalizing as it goes.
// Individual malformed items are skipped and logged, never fatal.
func (a *ListingFeedAdapter) Fetch(ctx context.Context, criteria Criteria) ([]models.NormalizedListing, error) {
	var out []models.NormalizedListing
	observedAt := time.Now().UTC()

	for page := 1; page <= maxFeedPages; page++ {
		pageData, err := a.fetchPage(ctx, criteria, page)
		if err != nil {
			return nil, err
		}

		for _, raw := range pageData.Listings {
			listing, ok := a.normalize(raw, observedAt)
			if !ok {
				continue
			}
			out = append(out, listing)
			if criteria.Limit > 0 && len(out) >= criteria.Limit {
				return out, nil
			}
		}

		if page >= pageData.TotalPages {
			break
		}
	}
	return out, nil
}

func (a *ListingFeedAdapter) fetchPage(ctx context.Context, criteria Criteria, page int) (*feedPage, error) {
	q := url.Values{}
	if criteria.Postcode != "" {
		q.Set("postcode", criteria.Postcode)
	}
	if criteria.City != "" {
		q.Set("city", criteria.City)
	}
	q.Set("page", fmt.Sprintf("%d", page))

	reqURL := fmt.Sprintf("%s/listings?%s", a.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "feed request failed", Retryable: true, Cause: err, Provider: a.name}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &pipeline.Error{Kind: pipeline.KindRateLimited, Message: "feed rate limited", Retryable: true, StatusCode: resp.StatusCode, Provider: a.name}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "unexpected feed status", StatusCode: resp.StatusCode, Provider: a.name}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "failed to read feed body", Retryable: true, Cause: err, Provider: a.name}
	}

	var pageData feedPage
	if err := json.Unmarshal(body, &pageData); err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindMalformed, Message: "failed to decode feed page", Cause: err, Provider: a.name}
	}
	return &pageData, nil
}

// normalize converts one raw feed item to the canonical listing shape.
// Returns false for items missing the identity fields every listing needs.
func (a *ListingFeedAdapter) normalize(raw json.RawMessage, observedAt time.Time) (models.NormalizedListing, bool) {
	var item feedItem
	if err := json.Unmarshal(raw, &item); err != nil {
		a.logger.Debug("Skipping malformed feed item", zap.Error(err))
		return models.NormalizedListing{}, false
	}
	if item.Address == "" || item.Postcode == "" {
		a.logger.Debug("Skipping feed item without address or postcode")
		return models.NormalizedListing{}, false
	}

	listingType := models.ListingType(item.ListingType)
	if !listingType.IsValid() {
		listingType = ""
	}

	return models.NormalizedListing{
		Source:       a.name,
		SourceType:   a.SourceType(),
		UPRN:         item.UPRN,
		Address:      item.Address,
		Postcode:     item.Postcode,
		City:         item.City,
		ListingType:  listingType,
		Price:        item.Price,
		Bedrooms:     item.Bedrooms,
		Bathrooms:    item.Bathrooms,
		PropertyType: item.PropertyType,
		Latitude:     item.Latitude,
		Longitude:    item.Longitude,
		ObservedAt:   observedAt,
	}, true
}
