package models

import "time"

// SourceType classifies where an enriched value came from.
type SourceType string

const (
	SourceOfficial   SourceType = "official"   // government register or statutory dataset
	SourceCommercial SourceType = "commercial" // paid listing feed or portal
	SourceEnriched   SourceType = "enriched"   // derived by our own enrichment stages
)

// IsValid returns true if the source type is recognised.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceOfficial, SourceCommercial, SourceEnriched:
		return true
	default:
		return false
	}
}

// Confidence returns the merge-precedence tier for the source type. Incoming
// values only overwrite existing ones when their confidence is greater than or
// equal to the existing value's confidence.
func (s SourceType) Confidence() int {
	switch s {
	case SourceOfficial:
		return 3
	case SourceCommercial:
		return 2
	case SourceEnriched:
		return 1
	default:
		return 0
	}
}

// FieldProvenance records where one enriched field's current value came from.
type FieldProvenance struct {
	Source     string     `json:"source"`
	SourceType SourceType `json:"source_type"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
