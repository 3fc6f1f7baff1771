package models

import "time"

// NormalizedListing is the canonical shape every source adapter produces from
// its raw provider payload. It is the only currency between adapters and the
// resolver; nil pointers mean "this source did not supply the field" and never
// overwrite existing values during a merge.
type NormalizedListing struct {
	Source     string     `json:"source"`
	SourceType SourceType `json:"source_type"`

	UPRN     string `json:"uprn,omitempty"`
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
	City     string `json:"city,omitempty"`

	ListingType  ListingType `json:"listing_type,omitempty"`
	Price        *float64    `json:"price,omitempty"`
	Bedrooms     *int        `json:"bedrooms,omitempty"`
	Bathrooms    *int        `json:"bathrooms,omitempty"`
	PropertyType string      `json:"property_type,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Licences observed alongside the listing, if the source is a licensing
	// register.
	Licences []Licence `json:"licences,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}
