package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAuthExpired        = errors.New("session expired")
	ErrMissingCredentials = errors.New("missing venue credentials")
	ErrVenueUnavailable   = errors.New("venue unavailable")
	ErrSelectionCollision = errors.New("selection already matched")
	ErrOpportunityExpired = errors.New("opportunity no longer available")
	ErrPriceMoved         = errors.New("price moved beyond tolerance")
	ErrLockHeld           = errors.New("lock already held")
)
