// Package epc queries the energy-certificate register: a basic-auth HTTP API
// returning certificate rows for a postcode.
package epc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/pipeline"
)

// Certificate is one register row. Numeric fields arrive as strings on the
// wire and are parsed leniently; a row with an unparsable floor area still
// carries its rating.
type Certificate struct {
	Address          string
	Postcode         string
	CurrentRating    string
	EfficiencyScore  int
	TotalFloorAreaM2 float64
	LodgementDate    string
	CertificateRef   string
	BuildingRef      string
}

// Client calls the energy-certificate register.
type Client struct {
	baseURL   string
	authEmail string
	authKey   string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a register client. Both basic-auth credentials are
// required; config validation enforces that before a run starts.
func NewClient(baseURL, authEmail, authKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		authEmail: authEmail,
		authKey:   authKey,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    logger.Named("epc"),
	}
}

// wireRow mirrors the register's column naming.
type wireRow struct {
	Address             string `json:"address"`
	Postcode            string `json:"postcode"`
	CurrentEnergyRating string `json:"current-energy-rating"`
	CurrentEfficiency   string `json:"current-energy-efficiency"`
	TotalFloorArea      string `json:"total-floor-area"`
	LodgementDate       string `json:"lodgement-date"`
	LMKKey              string `json:"lmk-key"`
	BuildingReference   string `json:"building-reference-number"`
}

// SearchByPostcode returns all certificates lodged for a postcode. A 404 or
// empty result set returns an empty slice and no error. Individual rows that
// fail to parse are skipped.
func (c *Client) SearchByPostcode(ctx context.Context, postcode string) ([]Certificate, error) {
	reqURL := fmt.Sprintf("%s/domestic/search?postcode=%s", c.baseURL, url.QueryEscape(postcode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.authEmail, c.authKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "register request failed", Retryable: true, Cause: err, Provider: "epc"}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &pipeline.Error{Kind: pipeline.KindConfiguration, Message: "register rejected credentials", StatusCode: resp.StatusCode, Provider: "epc"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &pipeline.Error{Kind: pipeline.KindRateLimited, Message: "register rate limited", Retryable: true, StatusCode: resp.StatusCode, Provider: "epc"}
	case resp.StatusCode != http.StatusOK:
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "unexpected register status", StatusCode: resp.StatusCode, Provider: "epc"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindTransient, Message: "failed to read register body", Retryable: true, Cause: err, Provider: "epc"}
	}
	// The register returns 200 with an empty body when nothing is lodged.
	if len(body) == 0 {
		return nil, nil
	}

	var payload struct {
		Rows []wireRow `json:"rows"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindMalformed, Message: "failed to decode register body", Cause: err, Provider: "epc"}
	}

	certs := make([]Certificate, 0, len(payload.Rows))
	for _, row := range payload.Rows {
		if row.Address == "" {
			c.logger.Debug("Skipping register row without address", zap.String("postcode", postcode))
			continue
		}
		certs = append(certs, parseRow(row))
	}
	return certs, nil
}

func parseRow(row wireRow) Certificate {
	cert := Certificate{
		Address:        row.Address,
		Postcode:       row.Postcode,
		CurrentRating:  row.CurrentEnergyRating,
		LodgementDate:  row.LodgementDate,
		CertificateRef: row.LMKKey,
		BuildingRef:    row.BuildingReference,
	}
	if v, err := strconv.Atoi(row.CurrentEfficiency); err == nil {
		cert.EfficiencyScore = v
	}
	if v, err := strconv.ParseFloat(row.TotalFloorArea, 64); err == nil {
		cert.TotalFloorAreaM2 = v
	}
	return cert
}
