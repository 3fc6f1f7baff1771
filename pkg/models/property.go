// Package models contains domain types for prospect-engine.
package models

import (
	"strings"
	"time"
)

// ListingType distinguishes rental listings from sale listings.
type ListingType string

const (
	ListingRent     ListingType = "rent"
	ListingPurchase ListingType = "purchase"
)

// IsValid returns true if the listing type is recognised.
func (t ListingType) IsValid() bool {
	switch t {
	case ListingRent, ListingPurchase:
		return true
	default:
		return false
	}
}

// ConstraintCategory classifies a planning constraint entry.
type ConstraintCategory string

const (
	ConstraintArticleFour      ConstraintCategory = "article_4"
	ConstraintConservationArea ConstraintCategory = "conservation_area"
	ConstraintListedBuilding   ConstraintCategory = "listed_building"
	ConstraintOther            ConstraintCategory = "other"
)

// PlanningConstraint is one typed planning restriction attached to a property.
type PlanningConstraint struct {
	Category    ConstraintCategory `json:"category"`
	Description string             `json:"description"`
	Reference   string             `json:"reference,omitempty"`
}

// Classification is the three-state investment outcome for a property.
type Classification string

const (
	ClassReadyToGo   Classification = "ready_to_go"
	ClassValueAdd    Classification = "value_add"
	ClassNotSuitable Classification = "not_suitable"
)

// IsValid returns true if the classification is recognised.
func (c Classification) IsValid() bool {
	switch c {
	case ClassReadyToGo, ClassValueAdd, ClassNotSuitable:
		return true
	default:
		return false
	}
}

// ScoreBreakdown holds the per-factor sub-scores behind a deal score.
// All sub-scores are on a 0-100 scale before weighting.
type ScoreBreakdown struct {
	Size     float64 `json:"size"`
	Location float64 `json:"location"`
	Price    float64 `json:"price"`
	Yield    float64 `json:"yield"`
	Energy   float64 `json:"energy"`
}

// BroadbandCoverage holds predicted speeds per tier, in Mbit/s.
// A nil pointer means the tier was never checked; the upstream API's -1
// "not available" sentinel is translated to an absent tier by the client.
type BroadbandCoverage struct {
	StandardMbps  *float64 `json:"standard_mbps,omitempty"`
	SuperfastMbps *float64 `json:"superfast_mbps,omitempty"`
	UltrafastMbps *float64 `json:"ultrafast_mbps,omitempty"`
	HasFibre      bool     `json:"has_fibre"`
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Property is the canonical, deduplicated record for one property across all
// observed sources. Exactly one exists per natural key (UPRN when known,
// otherwise normalized address + postcode).
type Property struct {
	ID string `json:"id"`

	// Identity
	UPRN     string `json:"uprn,omitempty"`
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
	City     string `json:"city,omitempty"`

	// Location
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Listing facts
	ListingType  ListingType `json:"listing_type,omitempty"`
	Price        *float64    `json:"price,omitempty"`
	Bedrooms     *int        `json:"bedrooms,omitempty"`
	Bathrooms    *int        `json:"bathrooms,omitempty"`
	PropertyType string      `json:"property_type,omitempty"`

	// Enrichment facts
	EPCRating          string               `json:"epc_rating,omitempty"`
	EPCScore           *int                 `json:"epc_score,omitempty"`
	EPCCertificate     string               `json:"epc_certificate,omitempty"`
	FloorAreaSqm       *float64             `json:"floor_area_sqm,omitempty"`
	FloorAreaBand      string               `json:"floor_area_band,omitempty"`
	Constraints        []PlanningConstraint `json:"constraints,omitempty"`
	InRestrictedArea   *bool                `json:"in_restricted_area,omitempty"`
	RestrictedAreaName string               `json:"restricted_area_name,omitempty"`
	Broadband          *BroadbandCoverage   `json:"broadband,omitempty"`

	// Scoring facts. These are always a deterministic function of the fields
	// above and are recomputed whenever any scoring input changes.
	DealScore      *float64        `json:"deal_score,omitempty"`
	Classification Classification  `json:"classification,omitempty"`
	Breakdown      *ScoreBreakdown `json:"breakdown,omitempty"`
	IsPotentialHMO *bool           `json:"is_potential_hmo,omitempty"`

	// Provenance, per enriched field.
	Provenance map[string]FieldProvenance `json:"provenance,omitempty"`

	// Freshness
	LastSeenAt    time.Time  `json:"last_seen_at"`
	Stale         bool       `json:"stale"`
	StaleMarkedAt *time.Time `json:"stale_marked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NaturalKey returns the stable identity used for deduplication: the UPRN when
// known, otherwise the normalized address joined with the normalized postcode.
func (p *Property) NaturalKey() string {
	if p.UPRN != "" {
		return "uprn:" + p.UPRN
	}
	return "addr:" + NormalizeKey(p.Address) + "|" + NormalizePostcode(p.Postcode)
}

// HasConstraintCategory reports whether a constraint of the given category is
// already present.
func (p *Property) HasConstraintCategory(cat ConstraintCategory) bool {
	for _, c := range p.Constraints {
		if c.Category == cat {
			return true
		}
	}
	return false
}

// NormalizePostcode uppercases a postcode and removes interior whitespace so
// "sw1a 1aa" and "SW1A1AA" key identically.
func NormalizePostcode(postcode string) string {
	return strings.ToUpper(strings.Join(strings.Fields(postcode), ""))
}

// NormalizeKey lowercases an address and collapses runs of whitespace and
// punctuation into single spaces, for use in natural keys and cache keys.
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
