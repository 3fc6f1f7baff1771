package apperrors

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrNoMatch        = errors.New("no match above threshold")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrConfiguration  = errors.New("configuration error")
	ErrInvalidListing = errors.New("listing missing address or postcode")
)
