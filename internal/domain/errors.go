package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrDatesUnavailable = errors.New("dates unavailable")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrAssetNotFound    = errors.New("asset not found")
	ErrCatalogItem      = errors.New("unknown catalog item")
)
