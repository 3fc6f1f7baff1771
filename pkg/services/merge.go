// Package services contains the resolver, enrichment stages, freshness
// sweep, and the orchestrator that runs them as one pass.
package services

import (
	"time"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// Provenance field names. One entry per enriched field on the canonical
// record.
const (
	FieldUPRN         = "uprn"
	FieldCity         = "city"
	FieldListingType  = "listing_type"
	FieldPrice        = "price"
	FieldBedrooms     = "bedrooms"
	FieldBathrooms    = "bathrooms"
	FieldPropertyType = "property_type"
	FieldLocation     = "location"
	FieldEPC          = "epc"
	FieldFloorArea    = "floor_area"
	FieldConstraints  = "constraints"
	FieldBroadband    = "broadband"
)

// fieldWriter applies source values to a canonical record under the
// confidence rules: a value is only written when the field is empty, or when
// the incoming source's confidence is at least the confidence of the source
// that last wrote it. Identical values are no-ops, except that a strictly
// higher-confidence source takes over the field's provenance.
type fieldWriter struct {
	p       *models.Property
	source  string
	st      models.SourceType
	at      time.Time
	changed bool
}

func newFieldWriter(p *models.Property, source string, st models.SourceType, at time.Time) *fieldWriter {
	return &fieldWriter{p: p, source: source, st: st, at: at}
}

// Changed reports whether any field was written.
func (w *fieldWriter) Changed() bool { return w.changed }

func (w *fieldWriter) allow(field string, hasExisting bool) bool {
	if !hasExisting {
		return true
	}
	existing, ok := w.p.Provenance[field]
	if !ok {
		// Value predates provenance tracking; any known source may claim it.
		return true
	}
	return w.st.Confidence() >= existing.SourceType.Confidence()
}

func (w *fieldWriter) record(field string) {
	if w.p.Provenance == nil {
		w.p.Provenance = make(map[string]models.FieldProvenance)
	}
	w.p.Provenance[field] = models.FieldProvenance{Source: w.source, SourceType: w.st, UpdatedAt: w.at}
	w.changed = true
}

// upgrade claims provenance for an already-correct value when the incoming
// source is strictly more trustworthy than the one on file.
func (w *fieldWriter) upgrade(field string) {
	existing, ok := w.p.Provenance[field]
	if ok && w.st.Confidence() <= existing.SourceType.Confidence() {
		return
	}
	w.record(field)
}

func (w *fieldWriter) String(field string, dst *string, v string) {
	if v == "" {
		return
	}
	if *dst == v {
		w.upgrade(field)
		return
	}
	if !w.allow(field, *dst != "") {
		return
	}
	*dst = v
	w.record(field)
}

func (w *fieldWriter) Float(field string, dst **float64, v *float64) {
	if v == nil {
		return
	}
	if *dst != nil && **dst == *v {
		w.upgrade(field)
		return
	}
	if !w.allow(field, *dst != nil) {
		return
	}
	val := *v
	*dst = &val
	w.record(field)
}

func (w *fieldWriter) Int(field string, dst **int, v *int) {
	if v == nil {
		return
	}
	if *dst != nil && **dst == *v {
		w.upgrade(field)
		return
	}
	if !w.allow(field, *dst != nil) {
		return
	}
	val := *v
	*dst = &val
	w.record(field)
}

// Location writes the coordinate pair as one field so latitude and longitude
// can never come from different sources.
func (w *fieldWriter) Location(lat, lng *float64) {
	if lat == nil || lng == nil {
		return
	}
	if w.p.Latitude != nil && w.p.Longitude != nil && *w.p.Latitude == *lat && *w.p.Longitude == *lng {
		w.upgrade(FieldLocation)
		return
	}
	if !w.allow(FieldLocation, w.p.Latitude != nil && w.p.Longitude != nil) {
		return
	}
	la, ln := *lat, *lng
	w.p.Latitude = &la
	w.p.Longitude = &ln
	w.record(FieldLocation)
}
