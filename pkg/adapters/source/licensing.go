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

// LicensingAdapter fetches an HMO licensing register: an official, paginated
// JSON feed keyed by postcode, where each entry carries licence dates and
// conditions alongside the property address.
type LicensingAdapter struct {
	name    string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewLicensingAdapter creates a licensing-register adapter.
func NewLicensingAdapter(name, baseURL string, logger *zap.Logger) *LicensingAdapter {
	return &LicensingAdapter{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.Named("licensing-" + name),
	}
}

var _ Adapter = (*LicensingAdapter)(nil)

func (a *LicensingAdapter) Name() string { return a.name }

func (a *LicensingAdapter) SourceType() models.SourceType { return models.SourceOfficial }

type licenceEntry struct {
	PropertyRef  string   `json:"property_ref"`
	UPRN         string   `json:"uprn"`
	Address      string   `json:"address"`
	Postcode     string   `json:"postcode"`
	City         string   `json:"city"`
	LicenceType  string   `json:"licence_type"`
	Number       string   `json:"licence_number"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	MaxOccupancy *int     `json:"max_occupancy"`
	Conditions   []string `json:"conditions"`
}

type licencePage struct {
	Entries []json.RawMessage `json:"entries"`
	Next    string            `json:"next,omitempty"`
}

// Fetch walks the register pages via its next-cursor links.
func (a *LicensingAdapter) Fetch(ctx context.Context, criteria Criteria) ([]models.NormalizedListing, error) {
	var out []models.NormalizedListing
	observedAt := time.Now().UTC()

	pageURL := fmt.Sprintf("%s/licences?postcode=%s", a.baseURL, url.QueryEscape(criteria.Postcode))
	for pages := 0; pageURL != "" && pages < maxFeedPages; pages++ {
		page, err := a.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		for _, raw := range page.Entries {
			listing, ok := a.normalize(raw, observedAt)
			if !ok {
				continue
			}
			out = append(out, listing)
			if criteria.Limit > 0 && len(out) >= criteria.Limit {
				return out, nil
			}
		}

		pageURL = page.Next
	}
	return out, nil
}

func (a *LicensingAdapter) fetchPage(ctx context.Context, pageURL string) (*licencePage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "register request failed", Retryable: true, Cause: err, Provider: a.name}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &pipeline.Error{Kind: pipeline.KindRateLimited, Message: "register rate limited", Retryable: true, StatusCode: resp.StatusCode, Provider: a.name}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "unexpected register status", StatusCode: resp.StatusCode, Provider: a.name}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "failed to read register body", Retryable: true, Cause: err, Provider: a.name}
	}

	var page licencePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindMalformed, Message: "failed to decode register page", Cause: err, Provider: a.name}
	}
	return &page, nil
}

func (a *LicensingAdapter) normalize(raw json.RawMessage, observedAt time.Time) (models.NormalizedListing, bool) {
	var entry licenceEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		a.logger.Debug("Skipping malformed register entry", zap.Error(err))
		return models.NormalizedListing{}, false
	}
	if entry.Address == "" || entry.Postcode == "" {
		a.logger.Debug("Skipping register entry without address or postcode")
		return models.NormalizedListing{}, false
	}

	licence := models.Licence{
		PropertyRef:   firstNonEmpty(entry.PropertyRef, entry.UPRN),
		TypeCode:      entry.LicenceType,
		Number:        entry.Number,
		StartDate:     parseDate(entry.StartDate),
		EndDate:       parseDate(entry.EndDate),
		Conditions:    entry.Conditions,
		Source:        a.name,
		SourceType:    a.SourceType(),
		LastUpdatedAt: observedAt,
	}
	licence.Status = licence.DeriveStatus(observedAt)

	listing := models.NormalizedListing{
		Source:     a.name,
		SourceType: a.SourceType(),
		UPRN:       entry.UPRN,
		Address:    entry.Address,
		Postcode:   entry.Postcode,
		City:       entry.City,
		Licences:   []models.Licence{licence},
		ObservedAt: observedAt,
	}
	// A licensed max occupancy implies a bedroom count one below it, which
	// the resolver may use when no listing source supplied bedrooms.
	if entry.MaxOccupancy != nil && *entry.MaxOccupancy > 1 {
		beds := *entry.MaxOccupancy - 1
		listing.Bedrooms = &beds
	}
	return listing, true
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
