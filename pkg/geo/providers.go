package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/logging"
	"github.com/prospecthq/prospect-engine/pkg/pipeline"
)

// Provider is one geocoding backend tier. Lookup returns (nil, nil) when the
// provider has no data for the query; errors are reserved for transport and
// rate-limit failures.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, query string) (*Point, error)
}

// Point is a raw provider coordinate result.
type Point struct {
	Lat float64
	Lng float64
}

// AddressProvider geocodes full addresses against a key-authenticated place
// search API. Higher precision than the postcode tier.
type AddressProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *Limiter
	logger  *zap.Logger
}

// NewAddressProvider creates the address-tier provider.
func NewAddressProvider(baseURL, apiKey string, timeout time.Duration, limiter *Limiter, logger *zap.Logger) *AddressProvider {
	return &AddressProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.Named("geocode-address"),
	}
}

var _ Provider = (*AddressProvider)(nil)

func (p *AddressProvider) Name() string { return "address" }

func (p *AddressProvider) Lookup(ctx context.Context, query string) (*Point, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/search?query=%s&key=%s",
		p.baseURL, url.QueryEscape(query), url.QueryEscape(p.apiKey))

	var payload struct {
		Results []struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"results"`
	}
	if err := p.getJSON(ctx, reqURL, &payload); err != nil {
		return nil, err
	}
	if len(payload.Results) == 0 {
		return nil, nil
	}
	return &Point{Lat: payload.Results[0].Lat, Lng: payload.Results[0].Lng}, nil
}

func (p *AddressProvider) getJSON(ctx context.Context, reqURL string, out any) error {
	return getJSON(ctx, p.client, reqURL, p.Name(), p.logger, out)
}

// PostcodeProvider geocodes postcodes against an open postcode API returning
// unit-postcode centroids.
type PostcodeProvider struct {
	baseURL string
	client  *http.Client
	limiter *Limiter
	logger  *zap.Logger
}

// NewPostcodeProvider creates the postcode-tier provider.
func NewPostcodeProvider(baseURL string, timeout time.Duration, limiter *Limiter, logger *zap.Logger) *PostcodeProvider {
	return &PostcodeProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.Named("geocode-postcode"),
	}
}

var _ Provider = (*PostcodeProvider)(nil)

func (p *PostcodeProvider) Name() string { return "postcode" }

func (p *PostcodeProvider) Lookup(ctx context.Context, postcode string) (*Point, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/postcodes/%s", p.baseURL, url.PathEscape(postcode))

	var payload struct {
		Status int `json:"status"`
		Result *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"result"`
	}
	if err := getJSON(ctx, p.client, reqURL, p.Name(), p.logger, &payload); err != nil {
		return nil, err
	}
	if payload.Result == nil {
		return nil, nil
	}
	return &Point{Lat: payload.Result.Latitude, Lng: payload.Result.Longitude}, nil
}

// getJSON performs a GET and decodes the JSON body. 404 means not-found and
// decodes to the zero payload; 429 and 5xx become classified pipeline errors.
func getJSON(ctx context.Context, client *http.Client, reqURL, provider string, logger *zap.Logger, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("Geocode request failed",
			zap.String("url", logging.SanitizeURL(reqURL)),
			zap.Error(err))
		return &pipeline.Error{Kind: pipeline.KindTransient, Message: "request failed", Retryable: true, Cause: err, Provider: provider}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &pipeline.Error{Kind: pipeline.KindRateLimited, Message: "rate limited", Retryable: true, StatusCode: resp.StatusCode, Provider: provider}
	case resp.StatusCode >= 500:
		return &pipeline.Error{Kind: pipeline.KindTransient, Message: "upstream error", Retryable: true, StatusCode: resp.StatusCode, Provider: provider}
	case resp.StatusCode != http.StatusOK:
		return &pipeline.Error{Kind: pipeline.KindTransient, Message: "unexpected status", StatusCode: resp.StatusCode, Provider: provider}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &pipeline.Error{Kind: pipeline.KindTransient, Message: "failed to read body", Retryable: true, Cause: err, Provider: provider}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &pipeline.Error{Kind: pipeline.KindMalformed, Message: "failed to decode body", Cause: err, Provider: provider}
	}
	return nil
}
