package models

import "time"

// LicenceStatus is the derived state of a property licence.
type LicenceStatus string

const (
	LicenceActive  LicenceStatus = "active"
	LicenceExpired LicenceStatus = "expired"
	LicencePending LicenceStatus = "pending"
	LicenceUnknown LicenceStatus = "unknown"
)

// Licence is one licensing-register entry for a property, identified by the
// property reference plus licence type code plus licence number.
type Licence struct {
	PropertyRef   string        `json:"property_ref"`
	TypeCode      string        `json:"type_code"`
	Number        string        `json:"number"`
	StartDate     *time.Time    `json:"start_date,omitempty"`
	EndDate       *time.Time    `json:"end_date,omitempty"`
	Status        LicenceStatus `json:"status"`
	Conditions    []string      `json:"conditions,omitempty"`
	Source        string        `json:"source,omitempty"`
	SourceType    SourceType    `json:"source_type,omitempty"`
	LastUpdatedAt time.Time     `json:"last_updated_at"`
}

// Key returns the licence's natural identity.
func (l *Licence) Key() string {
	return l.PropertyRef + "|" + l.TypeCode + "|" + l.Number
}

// DeriveStatus computes the licence status from its dates relative to now.
// Status is recomputed on every write; reads return the stored value.
func (l *Licence) DeriveStatus(now time.Time) LicenceStatus {
	switch {
	case l.StartDate == nil && l.EndDate == nil:
		return LicenceUnknown
	case l.StartDate != nil && now.Before(*l.StartDate):
		return LicencePending
	case l.EndDate != nil && now.After(*l.EndDate):
		return LicenceExpired
	default:
		return LicenceActive
	}
}
