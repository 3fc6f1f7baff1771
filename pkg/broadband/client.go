// Package broadband queries a postcode-keyed coverage API for predicted
// speeds per technology tier. The API uses -1 as a "not available" sentinel,
// which this client translates to absent tiers.
package broadband

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

// Client calls the broadband coverage API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a coverage client.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.Named("broadband"),
	}
}

// CoverageByPostcode returns the predicted coverage for a postcode, or
// (nil, nil) when the API has no data for it.
func (c *Client) CoverageByPostcode(ctx context.Context, postcode string) (*models.BroadbandCoverage, error) {
	reqURL := fmt.Sprintf("%s/coverage/postcode/%s", c.baseURL, url.PathEscape(models.NormalizePostcode(postcode)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Ofcom-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "coverage request failed", Retryable: true, Cause: err, Provider: "broadband"}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &pipeline.Error{Kind: pipeline.KindRateLimited, Message: "coverage rate limited", Retryable: true, StatusCode: resp.StatusCode, Provider: "broadband"}
	case resp.StatusCode != http.StatusOK:
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "unexpected coverage status", StatusCode: resp.StatusCode, Provider: "broadband"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "failed to read coverage body", Retryable: true, Cause: err, Provider: "broadband"}
	}

	var payload struct {
		MaxPredictedDown float64 `json:"max_predicted_down"`
		MaxSuperfastDown float64 `json:"max_superfast_predicted_down"`
		MaxUltrafastDown float64 `json:"max_ultrafast_predicted_down"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindMalformed, Message: "failed to decode coverage body", Cause: err, Provider: "broadband"}
	}

	coverage := &models.BroadbandCoverage{
		StandardMbps:  tierValue(payload.MaxPredictedDown),
		SuperfastMbps: tierValue(payload.MaxSuperfastDown),
		UltrafastMbps: tierValue(payload.MaxUltrafastDown),
	}
	coverage.HasFibre = coverage.UltrafastMbps != nil ||
		(coverage.SuperfastMbps != nil && *coverage.SuperfastMbps >= 30)
	return coverage, nil
}

// tierValue converts the wire value to a pointer. Anything at or below zero
// is "tier absent": the upstream sentinel is -1 and no real speed is
// negative.
func tierValue(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}
